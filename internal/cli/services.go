package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"straddle-trader/internal/api"
	"straddle-trader/internal/broker"
	"straddle-trader/internal/config"
	"straddle-trader/internal/market"
	"straddle-trader/internal/models"
	"straddle-trader/internal/notify"
	"straddle-trader/internal/pricecache"
	"straddle-trader/internal/strategy"
	"straddle-trader/pkg/utils"
)

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func (a *App) openCache(ctx context.Context) (*pricecache.RedisCache, error) {
	return pricecache.NewRedisCache(ctx, pricecache.RedisConfig{
		Addr:     a.Config.Redis.Addr,
		Password: a.Config.Redis.Password,
		DB:       a.Config.Redis.DB,
	})
}

// healthChecks registers the redis connection and index price age. The
// schedule database is added by callers that hold one.
func (a *App) healthChecks(cache *pricecache.RedisCache) *api.Health {
	h := api.NewHealth(3 * time.Second)
	h.Register("redis", api.PingCheck(cache.Ping, 250*time.Millisecond))
	index := a.Config.Strategy.Index
	h.Register("feed", api.FreshnessCheck(func(ctx context.Context) (time.Time, bool, error) {
		q, ok, err := cache.Get(ctx, index)
		return q.Timestamp, ok, err
	}, a.Config.Strategy.StaleAfter, nil))
	return h
}

func (a *App) kite() (*broker.ZerodhaGateway, error) {
	creds := a.Config.Credentials.Zerodha
	if creds.APIKey == "" || creds.APISecret == "" {
		return nil, errNotConfigured("Zerodha API key")
	}
	return broker.NewZerodhaGateway(broker.ZerodhaConfig{
		APIKey:    creds.APIKey,
		APISecret: creds.APISecret,
		UserID:    creds.UserID,
		Product:   models.ProductType(a.Config.Trading.Product),
		Logger:    a.Logger,
	}), nil
}

// autoLogin returns nil unless password and TOTP secret are both set.
func (a *App) autoLogin() *broker.AutoLogin {
	creds := a.Config.Credentials.Zerodha
	if creds.UserID == "" || creds.Password == "" || creds.TOTPSecret == "" {
		return nil
	}
	return &broker.AutoLogin{
		UserID:     creds.UserID,
		Password:   creds.Password,
		TOTPSecret: creds.TOTPSecret,
	}
}

// connectKite returns a gateway with a verified session, logging in with
// TOTP when the saved token is missing or rejected.
func (a *App) connectKite(ctx context.Context) (*broker.ZerodhaGateway, error) {
	z, err := a.kite()
	if err != nil {
		return nil, err
	}
	err = z.EnsureSession(ctx)
	if err == nil {
		return z, nil
	}
	login := a.autoLogin()
	if login == nil {
		return nil, err
	}
	a.Logger.Warn().Err(err).Msg("Saved session unusable, logging in with TOTP")
	if err := z.AutoLogin(ctx, login); err != nil {
		return nil, fmt.Errorf("auto-login: %w", err)
	}
	return z, nil
}

// notifier builds the configured channels. console, when set, also gets
// every notification.
func (a *App) notifier(console io.Writer) notify.Notifier {
	mn, err := notify.NewMultiNotifier(a.Config.Notifications)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("Notifications disabled")
		mn, _ = notify.NewMultiNotifier(config.NotificationConfig{})
	}
	if console != nil {
		mn.AddChannel(notify.NewConsoleNotifier(console))
	}
	return mn
}

// paperExpiry is strategy.expiry when set, else the next expiry weekday.
func (a *App) paperExpiry(now time.Time) (time.Time, error) {
	if raw := a.Config.Strategy.Expiry; raw != "" {
		return time.ParseInLocation("2006-01-02", raw, utils.IndiaLocation)
	}
	return utils.NextWeekday(now.In(utils.IndiaLocation), a.Config.ExpiryWeekday()), nil
}

// tradingEnv is what one session needs from the outside world.
type tradingEnv struct {
	gateway broker.Gateway
	paper   *broker.PaperGateway
	expiry  time.Time
	mode    string
}

// prepare builds the order gateway for a session. Paper mode fills at
// cached prices; live mode logs in and loads the instrument master.
func (a *App) prepare(ctx context.Context, cache pricecache.Cache) (*tradingEnv, error) {
	now := utils.NowIST()
	env := &tradingEnv{mode: "live"}

	var next broker.Gateway
	if a.Config.IsPaperMode() {
		expiry, err := a.paperExpiry(now)
		if err != nil {
			return nil, fmt.Errorf("strategy.expiry: %w", err)
		}
		prices := market.New(cache, market.Options{
			Index:      a.Config.Strategy.Index,
			Expiry:     expiry,
			StrikeStep: a.Config.Strategy.StrikeStep,
			StaleAfter: a.Config.Strategy.StaleAfter,
		})
		env.paper = broker.NewPaperGateway(broker.PaperConfig{
			Prices:         prices,
			InitialCapital: a.Config.Strategy.DryRun.InitialCapital,
			Logger:         a.Logger,
		})
		env.expiry = expiry
		env.mode = "paper"
		next = env.paper
	} else {
		z, err := a.connectKite(ctx)
		if err != nil {
			return nil, err
		}
		resolver, err := broker.LoadInstrumentResolver(ctx, z, a.Config.Strategy.Index, now)
		if err != nil {
			return nil, fmt.Errorf("loading instruments: %w", err)
		}
		z.SetResolver(resolver)
		env.expiry = resolver.Expiry()
		next = z
	}

	env.gateway = broker.NewRetryingGateway(next, broker.RetryOptions{
		MaxAttempts: a.Config.Strategy.Orders.MaxAttempts,
		Delay:       a.Config.Strategy.Orders.RetryDelay,
		Mode:        env.mode,
		Logger:      a.Logger,
		Metrics:     a.Metrics,
	})
	return env, nil
}

// newSession prepares the gateway and wires a session for day.
func (a *App) newSession(ctx context.Context, cache pricecache.Cache, day config.Day, notifier notify.Notifier) (*strategy.Session, *tradingEnv, error) {
	env, err := a.prepare(ctx, cache)
	if err != nil {
		return nil, nil, err
	}
	s := strategy.NewSession(a.Config, day, env.expiry, strategy.SessionDeps{
		Cache:    cache,
		Gateway:  env.gateway,
		Notifier: notifier,
		Metrics:  a.Metrics,
		Logger:   a.Logger,
	})
	a.Logger.Info().
		Str("session_id", s.ID()).
		Str("mode", env.mode).
		Time("expiry", env.expiry).
		Msg("Session prepared")
	return s, env, nil
}
