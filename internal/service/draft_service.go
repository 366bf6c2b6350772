package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/arturoeanton/milestoner/internal/domain"
	"github.com/arturoeanton/milestoner/internal/port"
)

// DraftStyle is the tone requested for a drafted post.
type DraftStyle string

const (
	StyleCasual       DraftStyle = "casual"
	StyleAnnouncement DraftStyle = "announcement"
	StyleTechnical    DraftStyle = "technical"
	StyleStorytelling DraftStyle = "storytelling"
)

var styleGuidance = map[DraftStyle]string{
	StyleCasual:       "Friendly, conversational tone. Like talking to a friend about what you built.",
	StyleAnnouncement: "Professional but excited. Announcing a milestone or release.",
	StyleTechnical:    "Focus on the technical details. What was implemented, how it works.",
	StyleStorytelling: "Tell the journey. The problem, the struggle, the solution.",
}

const draftCommitLimit = 10

// DraftRequest selects the activity and framing for a post draft.
type DraftRequest struct {
	Context  string `json:"context,omitempty"`
	Style    string `json:"style,omitempty"`
	RepoPath string `json:"repo_path,omitempty"`
	Range    string `json:"commit_range,omitempty"`
	Since    string `json:"since,omitempty"`
	Platform string `json:"platform,omitempty"`
}

// DraftCommit is the slimmed commit view handed to the writer.
type DraftCommit struct {
	Hash     string          `json:"hash"`
	Message  string          `json:"message"`
	Date     string          `json:"date"`
	Category domain.Category `json:"category"`
	Stats    string          `json:"stats"`
}

// Draft is everything needed to write a post about recent work. The service
// does not write the post itself.
type Draft struct {
	Platform       string                 `json:"platform"`
	CharacterLimit int                    `json:"character_limit"`
	Style          DraftStyle             `json:"style"`
	StyleGuidance  string                 `json:"style_guidance"`
	UserContext    string                 `json:"user_context,omitempty"`
	Commits        []DraftCommit          `json:"commits"`
	Summary        map[string]interface{} `json:"summary"`
	Instructions   string                 `json:"instructions"`
}

// DraftService prepares drafting context from repository activity.
type DraftService struct {
	activity  *ActivityService
	platforms port.PlatformRegistry
	config    port.ConfigProvider
}

// NewDraftService creates a new draft service.
func NewDraftService(activity *ActivityService, platforms port.PlatformRegistry, config port.ConfigProvider) *DraftService {
	return &DraftService{activity: activity, platforms: platforms, config: config}
}

// Prepare summarizes the selected activity and frames it for the target platform.
func (s *DraftService) Prepare(ctx context.Context, req DraftRequest) (*Draft, error) {
	style := DraftStyle(strings.ToLower(strings.TrimSpace(req.Style)))
	if style == "" {
		style = StyleCasual
	}
	guidance, ok := styleGuidance[style]
	if !ok {
		return nil, &port.ValidationError{
			Message: fmt.Sprintf("unknown style %q: want casual, announcement, technical or storytelling", req.Style),
		}
	}

	name, platform, err := resolvePlatform(s.platforms, s.config, req.Platform)
	if err != nil {
		return nil, err
	}

	summary, err := s.activity.Summarize(ctx, ActivityQuery{
		RepoPath: req.RepoPath,
		Since:    req.Since,
		Range:    req.Range,
	})
	if err != nil {
		return nil, err
	}

	commits := []DraftCommit{}
	for _, c := range summary.Commits() {
		if len(commits) == draftCommitLimit {
			break
		}
		commits = append(commits, DraftCommit{
			Hash:     c.ShortHash,
			Message:  c.Message,
			Date:     c.Day,
			Category: c.Category,
			Stats:    c.Stats(),
		})
	}

	highlight := strings.TrimSpace(req.Context)
	if highlight == "" {
		highlight = "general progress"
	}

	return &Draft{
		Platform:       name,
		CharacterLimit: platform.CharacterLimit(),
		Style:          style,
		StyleGuidance:  guidance,
		UserContext:    strings.TrimSpace(req.Context),
		Commits:        commits,
		Summary: map[string]interface{}{
			"total_commits": summary.TotalCount,
			"days_active":   len(summary.Days),
			"insertions":    summary.TotalInsertions,
			"deletions":     summary.TotalDeletions,
			"files_changed": len(summary.FilesChanged),
			"categories":    summary.Categories,
			"oldest":        summary.Oldest,
			"newest":        summary.Newest,
		},
		Instructions: fmt.Sprintf(
			"Generate a %s post (%d char max) based on this git activity. Style: %s. "+
				"User wants to highlight: %s. Keep it authentic and avoid corporate speak. "+
				"Optionally suggest 1-2 relevant hashtags at the end.",
			name, platform.CharacterLimit(), style, highlight,
		),
	}, nil
}
