package cli

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"straddle-trader/internal/broker"
	"straddle-trader/pkg/utils"
)

// addAuthCommands adds authentication commands.
func addAuthCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newLoginCmd(app))
	rootCmd.AddCommand(newAuthStatusCmd(app))
}

func newLoginCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to Zerodha Kite Connect",
		Long: `Log in to Zerodha Kite Connect and save the access token.

If user_id, password and totp_secret are set in credentials.toml the login
runs without a browser. Otherwise the login page is opened and the
request_token from the redirect URL is read from stdin.`,
		Example: `  straddle login
  straddle login --browser        # skip auto-login
  straddle login --token=<token>  # complete login with a request token`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()

			z, err := app.kite()
			if err != nil {
				output.Error("%v", err)
				return err
			}

			if token, _ := cmd.Flags().GetString("token"); token != "" {
				return completeLogin(ctx, app, output, z, token)
			}

			forceBrowser, _ := cmd.Flags().GetBool("browser")
			if login := app.autoLogin(); login != nil && !forceBrowser {
				output.Info("Auto-login credentials found, logging in with TOTP...")
				err := z.AutoLogin(ctx, login)
				if err == nil {
					output.Success("✓ Login successful")
					return showLoginStatus(ctx, app, output, z)
				}
				output.Warning("Auto-login failed: %v", err)
				output.Info("Falling back to browser login...")
				output.Println()
			}

			loginURL := z.LoginURL()
			output.Bold("Login URL:")
			output.Println(loginURL)
			output.Println()
			if err := openURL(loginURL); err != nil {
				output.Warning("Could not open browser automatically")
			}

			output.Info("After logging in you are redirected to a URL like:")
			output.Dim("  https://your-redirect-url.com/?request_token=XXXXXX&status=success")
			output.Println()
			output.Bold("Paste the request_token value here:")

			reader := bufio.NewReader(cmd.InOrStdin())
			fmt.Fprint(cmd.OutOrStdout(), "> ")
			token, _ := reader.ReadString('\n')
			token = strings.TrimSpace(token)
			if token == "" {
				output.Error("No token provided")
				return fmt.Errorf("no token provided")
			}
			return completeLogin(ctx, app, output, z, token)
		},
	}

	cmd.Flags().Bool("browser", false, "force the browser flow (skip auto-login)")
	cmd.Flags().String("token", "", "request token from the redirect URL")

	return cmd
}

func completeLogin(ctx context.Context, app *App, output *Output, z *broker.ZerodhaGateway, token string) error {
	output.Info("Completing login with token...")
	if err := z.CompleteLogin(ctx, token); err != nil {
		output.Error("Login failed: %v", err)
		return err
	}
	output.Success("✓ Login successful")
	return showLoginStatus(ctx, app, output, z)
}

// showLoginStatus prints the account's capital as the strategy sizes it.
func showLoginStatus(ctx context.Context, app *App, output *Output, z *broker.ZerodhaGateway) error {
	funds, err := z.FundsAndMargin(ctx)
	if err != nil {
		output.Warning("Could not read funds: %v", err)
		return nil
	}

	output.Println()
	output.Bold("Account")
	output.Printf("  User ID:    %s\n", app.Config.Credentials.Zerodha.UserID)
	output.Printf("  Cash:       %s\n", utils.FormatIndianCurrency(funds.AvailableCash))
	output.Printf("  Margin use: %s\n", utils.FormatIndianCurrency(funds.UtilisedDebits))
	output.Printf("  Capital:    %s (%s)\n", utils.FormatIndianCurrency(funds.Capital()), utils.FormatLakhs(funds.Capital()))
	return nil
}

func openURL(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return fmt.Errorf("unsupported platform")
	}
	return cmd.Start()
}

func newAuthStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "auth-status",
		Short: "Check authentication status",
		Long:  "Verify the saved Kite session and show when it expires.",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			z, err := app.kite()
			if err != nil {
				output.Error("%v", err)
				return nil
			}
			if err := z.EnsureSession(ctx); err != nil {
				output.Warning("Not authenticated: %v", err)
				output.Info("Run 'straddle login' to authenticate")
				return nil
			}
			output.Success("✓ Authenticated")
			if err := showLoginStatus(ctx, app, output, z); err != nil {
				return err
			}

			// Kite access tokens expire at 06:00 IST the next morning.
			now := utils.NowIST()
			expiry := time.Date(now.Year(), now.Month(), now.Day()+1, 6, 0, 0, 0, utils.IndiaLocation)
			if now.Hour() < 6 {
				expiry = time.Date(now.Year(), now.Month(), now.Day(), 6, 0, 0, 0, utils.IndiaLocation)
			}
			output.Println()
			output.Printf("  Session expires: %s (%s remaining)\n", expiry.Format("02 Jan 15:04"), formatDuration(expiry.Sub(now)))

			if app.autoLogin() != nil {
				output.Success("✓ Auto-login configured")
			}
			return nil
		},
	}
}

func formatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
