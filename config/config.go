package config

import (
	"fmt"
	"log"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	DiscordBotToken    string `envconfig:"DISCORD_BOT_TOKEN"`
	DiscordChannelID   string `envconfig:"DISCORD_CHANNEL_ID"`
	DiscordGuildID     string `envconfig:"DISCORD_GUILD_ID"`
	GroupMeBotID       string `envconfig:"GROUPME_BOT_ID"`
	GroupMeAccessToken string `envconfig:"GROUPME_ACCESS_TOKEN"`
	GroupMeGroupID     string `envconfig:"GROUPME_GROUP_ID"`
	GroupMePushEnabled bool   `envconfig:"GROUPME_PUSH_ENABLED"`
	Port               int    `envconfig:"PORT" default:"8000"`
	Debug              bool   `envconfig:"DEBUG"`
}

func Load(envFile string) (*Config, error) {
	if err := godotenv.Load(envFile); err != nil {
		log.Printf("Warning: error loading %s: %v", envFile, err)
	}

	cfg := &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces the fatal-at-startup settings. Optional credentials only
// degrade features, which the caller reports via Features.
func (c *Config) Validate() error {
	if c.DiscordBotToken == "" {
		return fmt.Errorf("DISCORD_BOT_TOKEN not set")
	}
	if c.DiscordChannelID == "" {
		return fmt.Errorf("DISCORD_CHANNEL_ID not set")
	}
	if c.GroupMeBotID == "" {
		return fmt.Errorf("GROUPME_BOT_ID not set")
	}
	return nil
}

// Features reports which optional feature sets the available credentials
// enable. Missing GROUPME_ACCESS_TOKEN disables image uploads; reactions and
// polls additionally need GROUPME_GROUP_ID.
type Features struct {
	ImageSupport bool `json:"image_support"`
	Reactions    bool `json:"reactions"`
	Polls        bool `json:"polls"`
	Threading    bool `json:"threading"`
}

func (c *Config) Features() Features {
	return Features{
		ImageSupport: c.GroupMeAccessToken != "",
		Reactions:    c.GroupMeAccessToken != "" && c.GroupMeGroupID != "",
		Polls:        c.GroupMeAccessToken != "" && c.GroupMeGroupID != "",
		Threading:    true,
	}
}
