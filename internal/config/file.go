package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/itsnelsonvargas/ClickTok/internal/acquirer"
	"github.com/itsnelsonvargas/ClickTok/internal/extract"
	"github.com/itsnelsonvargas/ClickTok/internal/models"
	"gopkg.in/yaml.v3"
)

// TargetsFile is the optional YAML file describing where and how to look.
type TargetsFile struct {
	Targets       acquirer.Targets `yaml:"targets"`
	Filters       *models.Filters  `yaml:"filters"`
	CardSelectors []string         `yaml:"card_selectors"`
}

// LoadTargetsFile reads path and fills anything it leaves out with built-in
// defaults. An empty path yields the defaults.
func LoadTargetsFile(path string) (*TargetsFile, error) {
	var tf TargetsFile
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read targets file: %w", err)
		}
		if err := yaml.Unmarshal(data, &tf); err != nil {
			return nil, fmt.Errorf("failed to parse targets file %s: %w", path, err)
		}
	}

	tf.applyDefaults()
	return &tf, nil
}

func (tf *TargetsFile) applyDefaults() {
	defaults := acquirer.DefaultTargets()
	t := &tf.Targets

	if t.Home == "" {
		t.Home = defaults.Home
	}
	if t.Surfaces == nil {
		t.Surfaces = defaults.Surfaces
	}
	if t.SearchURL == "" {
		t.SearchURL = defaults.SearchURL
	}
	if t.Keywords == nil {
		t.Keywords = defaults.Keywords
	}
	if len(t.FallbackTerms) == 0 {
		t.FallbackTerms = defaults.FallbackTerms
	}
	if isEmptyMarkers(t.LoginWall) {
		t.LoginWall = defaults.LoginWall
	}
	if isEmptyMarkers(t.NotFound) {
		t.NotFound = defaults.NotFound
	}

	if tf.Filters == nil {
		f := models.DefaultFilters()
		tf.Filters = &f
	}
	if len(tf.CardSelectors) == 0 {
		tf.CardSelectors = extract.DefaultCardSelectors
	}
}

func isEmptyMarkers(m acquirer.Markers) bool {
	return len(m.URL) == 0 && len(m.Title) == 0 && len(m.Text) == 0
}

// CredentialsFile mirrors the credentials.json layout.
type CredentialsFile struct {
	Shop struct {
		AppKey      string `json:"app_key"`
		AppSecret   string `json:"app_secret"`
		AccessToken string `json:"access_token"`
	} `json:"tiktok_shop_api"`
	TikTok struct {
		AffiliateID string `json:"affiliate_id"`
	} `json:"tiktok"`
}

// LoadCredentialsFile returns nil, nil when path does not exist.
func LoadCredentialsFile(path string) (*CredentialsFile, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}

	var creds CredentialsFile
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("failed to parse credentials file %s: %w", path, err)
	}
	return &creds, nil
}
