// Package dashboard assembles the analytics and profile pages from the
// remote API.
package dashboard

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/sat-prep/web/internal/models"
	"github.com/sat-prep/web/internal/resume"
)

// Analytics is the part of the remote API the dashboard reads.
type Analytics interface {
	GetProfile(ctx context.Context, token string) (*models.Profile, error)
	Performance(ctx context.Context, token string) (*models.Performance, error)
}

type Service struct {
	api   Analytics
	store resume.Store
}

func NewService(api Analytics, store resume.Store) *Service {
	return &Service{api: api, store: store}
}

type Dashboard struct {
	DisplayName string              `json:"display_name"`
	Profile     *models.Profile     `json:"profile"`
	Performance *models.Performance `json:"performance"`
	Completions int                 `json:"completions"`
	// Weakest holds up to five skills ordered by ascending success rate.
	Weakest []models.BreakdownRow `json:"weakest_skills"`
}

// Dashboard fetches the profile and performance concurrently. Either failing
// fails the whole page; the completion count is best effort.
func (s *Service) Dashboard(ctx context.Context, token, owner string) (*Dashboard, error) {
	var (
		profile     *models.Profile
		performance *models.Performance
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := s.api.GetProfile(gctx, token)
		if err != nil {
			return errors.Wrap(err, "get profile")
		}
		profile = p
		return nil
	})
	g.Go(func() error {
		p, err := s.api.Performance(gctx, token)
		if err != nil {
			return errors.Wrap(err, "get performance")
		}
		performance = p
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	d := &Dashboard{
		DisplayName: profile.DisplayName(),
		Profile:     redacted(profile),
		Performance: performance,
		Weakest:     weakest(performance.SkillPerformance, 5),
	}
	if s.store != nil && owner != "" {
		if n, err := s.store.Completions(ctx, owner); err == nil {
			d.Completions = n
		}
	}
	return d, nil
}

func weakest(rows []models.BreakdownRow, n int) []models.BreakdownRow {
	out := make([]models.BreakdownRow, 0, len(rows))
	for _, r := range rows {
		if r.TotalQuestions > 0 {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SuccessRate < out[j].SuccessRate })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// redacted copies p with every device access token blanked, so the profile
// can be rendered or serialized back to the browser.
func redacted(p *models.Profile) *models.Profile {
	out := *p
	out.DeviceFingerprint = make([]models.DeviceFingerprint, len(p.DeviceFingerprint))
	for i, d := range p.DeviceFingerprint {
		d.AccessToken = ""
		out.DeviceFingerprint[i] = d
	}
	return &out
}

type Device struct {
	Index       int    `json:"index"`
	DeviceID    string `json:"device_id"`
	IPAddress   string `json:"ip_address"`
	Fingerprint string `json:"fingerprint"`
}

type ProfilePage struct {
	DisplayName string          `json:"display_name"`
	Profile     *models.Profile `json:"profile"`
	Devices     []Device        `json:"devices"`
}

// Profile fetches the profile and lists its device log with fingerprints
// shortened to 20 characters. Device access tokens are never shown.
func (s *Service) Profile(ctx context.Context, token string) (*ProfilePage, error) {
	p, err := s.api.GetProfile(ctx, token)
	if err != nil {
		return nil, errors.Wrap(err, "get profile")
	}

	page := &ProfilePage{DisplayName: p.DisplayName(), Profile: redacted(p), Devices: []Device{}}
	for i, d := range p.DeviceFingerprint {
		fp := d.Fingerprint
		if r := []rune(fp); len(r) > 20 {
			fp = string(r[:20]) + "..."
		}
		page.Devices = append(page.Devices, Device{
			Index:       i + 1,
			DeviceID:    d.DeviceID,
			IPAddress:   d.IPAddress,
			Fingerprint: fp,
		})
	}
	return page, nil
}
