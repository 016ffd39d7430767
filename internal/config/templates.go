package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Straddle Trader Configuration

[trading]
# Trading mode: "live" or "paper"
mode = "paper"
exchange = "NFO"
product = "MIS"

[strategy]
index = "NIFTY"
index_token = 256265
strike_step = 50
# Contracts per exchange lot
quantity_per_lot = 50
loop_interval = "2s"
monitor_interval = "2s"
# Second-shift trigger offsets tighten from +-45 to +-35 at this time
second_shift_cutoff = "13:30"
# Deploy remaining capital this long after entry
tranche_delay = "15m"
# Prices older than this are treated as missing
stale_after = "1m"
hedge_scan_depth = 20
expiry_weekday = "thursday"
# expiry = "2024-10-24"

[strategy.dry_run]
initial_capital = 1000000.0
margin_per_lot = 50000.0

[strategy.orders]
max_attempts = 3
retry_delay = "1s"

[strategy.feed]
otm_strikes = 15
itm_strikes = 10

[strategy.days.monday]
run = true
entry_time = "09:50"
exit_time = "15:00"
stop_loss_percent = 1.0
target_percent = 2.0
capital_to_trade_percent = 90.0
expected_margin_per_lot = 50000.0
ce_hedge_premium = 5.0
pe_hedge_premium = 5.0
hedge_shifting = false

[strategy.days.tuesday]
run = true
entry_time = "09:50"
exit_time = "15:00"
stop_loss_percent = 1.0
target_percent = 2.0
capital_to_trade_percent = 90.0
expected_margin_per_lot = 50000.0
ce_hedge_premium = 5.0
pe_hedge_premium = 5.0
hedge_shifting = false

[strategy.days.wednesday]
run = true
entry_time = "09:50"
exit_time = "15:00"
stop_loss_percent = 1.0
target_percent = 2.0
capital_to_trade_percent = 90.0
expected_margin_per_lot = 50000.0
ce_hedge_premium = 5.0
pe_hedge_premium = 5.0
hedge_shifting = true

[strategy.days.thursday]
run = true
entry_time = "09:50"
exit_time = "15:00"
stop_loss_percent = 1.5
target_percent = 3.0
capital_to_trade_percent = 90.0
expected_margin_per_lot = 45000.0
ce_hedge_premium = 2.0
pe_hedge_premium = 2.0
hedge_shifting = true

# Delay entry once if the ATM straddle premium is outside this band
[strategy.days.thursday.price_check]
min = 80.0
max = 250.0
entry_delay = "15m"

[strategy.days.friday]
run = true
entry_time = "09:50"
exit_time = "15:00"
stop_loss_percent = 1.0
target_percent = 2.0
capital_to_trade_percent = 90.0
expected_margin_per_lot = 50000.0
ce_hedge_premium = 5.0
pe_hedge_premium = 5.0
hedge_shifting = false

[redis]
addr = "localhost:6379"
password = ""
db = 0
manual_exit_key = "MANUAL_EXIT"

[server]
enabled = true
addr = "127.0.0.1:8090"

[schedule]
# Seconds-resolution cron, IST
cron = "0 0 9 * * MON-FRI"
# database_path = "/var/lib/straddle/dashboard.db"

[logging]
level = "info"
console = true
file = true
# path = "/var/log/straddle/straddle.log"
max_size = 100
max_backups = 7
max_age = 30

[notifications]
enabled = false
# Notification level: all, trades_only, errors_only
level = "all"

[notifications.webhook]
enabled = false
url = ""

[notifications.telegram]
enabled = false
bot_token = ""
chat_id = 0
`

const credentialsTemplate = `# Straddle Trader Credentials
# WARNING: Keep this file secure! Do not commit to version control.

[zerodha]
api_key = ""
api_secret = ""
user_id = ""
password = ""
totp_secret = ""
`

// Template returns the default config.toml contents.
func Template() string {
	return configTemplate
}

func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "config.toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}
	return nil
}

func createTemplateCredentials(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "credentials.toml")
	// Use restricted permissions for credentials file
	if err := os.WriteFile(path, []byte(credentialsTemplate), 0600); err != nil {
		return fmt.Errorf("writing credentials template: %w", err)
	}
	return nil
}
