package channel

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/leadon/outreach-cli/internal/model"
)

// Policy holds the per-channel send ceilings and action tuning.
type Policy struct {
	DailyCap  int `yaml:"daily_cap"`
	HourlyCap int `yaml:"hourly_cap"`
	LikeCount int `yaml:"like_count"` // posts liked per like_posts action
}

// DefaultPolicies returns the built-in channel policies. Telegram is a
// low-trust channel and gets the tight ceilings.
func DefaultPolicies() map[model.Channel]Policy {
	return map[model.Channel]Policy{
		model.ChannelLinkedIn: {DailyCap: 25, HourlyCap: 8, LikeCount: 3},
		model.ChannelTelegram: {DailyCap: 10, HourlyCap: 1},
	}
}

// LoadPolicies reads per-channel policies from a YAML file, filling gaps
// from the defaults. A missing file yields the defaults unchanged.
func LoadPolicies(path string) (map[model.Channel]Policy, error) {
	policies := DefaultPolicies()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return policies, nil
		}
		return nil, eris.Wrapf(err, "channel: read policy file %s", path)
	}

	var wrapper struct {
		Channels map[model.Channel]Policy `yaml:"channels"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "channel: parse policy file")
	}

	for ch, p := range wrapper.Channels {
		base := policies[ch]
		if p.DailyCap > 0 {
			base.DailyCap = p.DailyCap
		}
		if p.HourlyCap > 0 {
			base.HourlyCap = p.HourlyCap
		}
		if p.LikeCount > 0 {
			base.LikeCount = p.LikeCount
		}
		policies[ch] = base
	}

	return policies, nil
}
