package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:  "info",
			LogFormat: "text",
			Workers:   4,
			BusBuffer: 100,
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Admin: AdminConfig{
				Username: "admin",
			},
		},
		WhatsApp: WhatsAppConfig{
			APIBase:           "https://graph.facebook.com",
			APIVersion:        "v21.0",
			WebhookPath:       "/webhook/whatsapp",
			SendRatePerSecond: 20,
			SendBurst:         5,
			TimeoutSeconds:    15,
		},
		Store: StoreConfig{
			Driver:      "sqlite",
			DBPath:      "~/.floorbot/floorbot.db",
			DynamoTable: "floorbot",
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			Endpoint: "/metrics",
		},
	}
}

// Template is the config written by "floorbot init": WhatsApp enabled with
// every credential read from the environment.
func Template() *Config {
	cfg := Defaults()
	cfg.WhatsApp.Enabled = true
	cfg.WhatsApp.AppSecret = "${WHATSAPP_APP_SECRET}"
	cfg.WhatsApp.AccessToken = "${WHATSAPP_ACCESS_TOKEN}"
	cfg.WhatsApp.VerifyToken = "${WHATSAPP_VERIFY_TOKEN}"
	cfg.WhatsApp.PhoneNumberID = "${WHATSAPP_PHONE_NUMBER_ID}"
	cfg.Notify.Telegram.Token = "${TELEGRAM_BOT_TOKEN:-}"
	cfg.AWS.Region = "${AWS_REGION:-}"
	return cfg
}
