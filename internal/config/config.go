package config

import "github.com/caarlos0/env/v11"

type Config struct {
	GitHubAccessToken string `env:"GITHUB_ACCESS_TOKEN,required,notEmpty"`
	OpenAIAPIKey      string `env:"OPENAI_API_KEY"`
	DBPath            string `env:"DB_PATH"             envDefault:"db.sqlite"`
	ListenAddr        string `env:"LISTEN_ADDR"         envDefault:":8080"`
	ScheduleEnabled   bool   `env:"SCHEDULE_ENABLED"    envDefault:"false"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
