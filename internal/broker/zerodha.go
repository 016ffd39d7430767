package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	"straddle-trader/internal/errors"
	"straddle-trader/internal/logging"
	"straddle-trader/internal/models"
	"straddle-trader/pkg/utils"
)

// ZerodhaGateway implements Gateway and ContractSource on Kite Connect.
type ZerodhaGateway struct {
	client        *kiteconnect.Client
	apiKey        string
	apiSecret     string
	userID        string
	accessToken   string
	tokenPath     string
	authenticated bool
	product       models.ProductType
	resolver      *InstrumentResolver
	logger        zerolog.Logger
	mu            sync.RWMutex
}

// ZerodhaConfig holds configuration for the Kite gateway.
type ZerodhaConfig struct {
	APIKey    string
	APISecret string
	UserID    string
	TokenPath string
	Product   models.ProductType
	// BaseURI overrides the Kite API root.
	BaseURI string
	Logger  zerolog.Logger
}

// NewZerodhaGateway creates a gateway and loads any saved session from disk.
func NewZerodhaGateway(cfg ZerodhaConfig) *ZerodhaGateway {
	client := kiteconnect.New(cfg.APIKey)
	if cfg.BaseURI != "" {
		client.SetBaseURI(cfg.BaseURI)
	}

	tokenPath := cfg.TokenPath
	if tokenPath == "" {
		homeDir, _ := os.UserHomeDir()
		tokenPath = filepath.Join(homeDir, ".config", "straddle-trader", "session.json")
	}

	product := cfg.Product
	if product == "" {
		product = models.ProductMIS
	}

	zg := &ZerodhaGateway{
		client:    client,
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
		userID:    cfg.UserID,
		tokenPath: tokenPath,
		product:   product,
		logger:    logging.WithComponent(cfg.Logger, "kite"),
	}

	_ = zg.loadSession()

	return zg
}

// sessionData represents persisted session data.
type sessionData struct {
	AccessToken string    `json:"access_token"`
	UserID      string    `json:"user_id"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// LoginURL is the Kite Connect login page for this API key.
func (z *ZerodhaGateway) LoginURL() string {
	return z.client.GetLoginURL()
}

// EnsureSession verifies the saved session against the profile endpoint.
func (z *ZerodhaGateway) EnsureSession(ctx context.Context) error {
	if !z.IsAuthenticated() {
		return fmt.Errorf("%w: visit %s to log in", errors.ErrNotAuthenticated, z.LoginURL())
	}
	start := time.Now()
	_, err := z.client.GetUserProfile()
	logging.LogAPICall(z.logger, "GET", "/user/profile", time.Since(start), err)
	if err != nil {
		z.mu.Lock()
		z.authenticated = false
		z.mu.Unlock()
		return errors.NewBrokerError("SESSION", "saved session rejected", errors.ErrSessionExpired)
	}
	return nil
}

// CompleteLogin exchanges a request token for an access token and persists it.
func (z *ZerodhaGateway) CompleteLogin(ctx context.Context, requestToken string) error {
	session, err := z.client.GenerateSession(requestToken, z.apiSecret)
	if err != nil {
		return errors.NewBrokerError("LOGIN", "failed to generate session", err)
	}

	z.mu.Lock()
	z.accessToken = session.AccessToken
	z.authenticated = true
	z.client.SetAccessToken(session.AccessToken)
	z.mu.Unlock()

	if err := z.saveSession(session.AccessToken); err != nil {
		z.logger.Warn().Err(err).Msg("Failed to persist session")
	}

	z.logger.Info().Str("user_id", session.UserID).Msg("Kite session established")
	return nil
}

// AutoLogin logs in with password and TOTP and completes the session.
func (z *ZerodhaGateway) AutoLogin(ctx context.Context, login *AutoLogin) error {
	token, err := login.RequestToken(ctx, z.LoginURL())
	if err != nil {
		return err
	}
	return z.CompleteLogin(ctx, token)
}

// IsAuthenticated returns whether the gateway holds an access token.
func (z *ZerodhaGateway) IsAuthenticated() bool {
	z.mu.RLock()
	defer z.mu.RUnlock()
	return z.authenticated
}

// AccessToken returns the current access token for the ticker.
func (z *ZerodhaGateway) AccessToken() string {
	z.mu.RLock()
	defer z.mu.RUnlock()
	return z.accessToken
}

// APIKey returns the Kite API key.
func (z *ZerodhaGateway) APIKey() string {
	return z.apiKey
}

// SetResolver installs the symbol resolver used to map cache symbols to
// Kite tradingsymbols.
func (z *ZerodhaGateway) SetResolver(r *InstrumentResolver) {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.resolver = r
}

func (z *ZerodhaGateway) loadSession() error {
	data, err := os.ReadFile(z.tokenPath)
	if err != nil {
		return err
	}

	var session sessionData
	if err := json.Unmarshal(data, &session); err != nil {
		return err
	}

	// Kite tokens expire at 6 AM IST the next day
	if time.Now().After(session.ExpiresAt) {
		return errors.ErrSessionExpired
	}

	z.mu.Lock()
	z.accessToken = session.AccessToken
	z.authenticated = true
	z.client.SetAccessToken(session.AccessToken)
	z.mu.Unlock()

	return nil
}

func (z *ZerodhaGateway) saveSession(accessToken string) error {
	dir := filepath.Dir(z.tokenPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	now := utils.NowIST()
	expiresAt := time.Date(now.Year(), now.Month(), now.Day()+1, 6, 0, 0, 0, utils.IndiaLocation)

	session := sessionData{
		AccessToken: accessToken,
		UserID:      z.userID,
		ExpiresAt:   expiresAt,
	}

	data, err := json.Marshal(session)
	if err != nil {
		return err
	}

	return os.WriteFile(z.tokenPath, data, 0600)
}

// Contracts fetches the instrument master.
func (z *ZerodhaGateway) Contracts(ctx context.Context) ([]models.Contract, error) {
	if !z.IsAuthenticated() {
		return nil, errors.ErrNotAuthenticated
	}

	start := time.Now()
	instruments, err := z.client.GetInstruments()
	logging.LogAPICall(z.logger, "GET", "/instruments", time.Since(start), err)
	if err != nil {
		return nil, errors.NewBrokerError("INSTRUMENTS", "failed to get instruments", err)
	}

	result := make([]models.Contract, 0, len(instruments))
	for _, inst := range instruments {
		result = append(result, models.Contract{
			Token:         uint32(inst.InstrumentToken),
			Tradingsymbol: inst.Tradingsymbol,
			Name:          inst.Name,
			Exchange:      models.Exchange(inst.Exchange),
			Segment:       inst.Segment,
			LotSize:       int(inst.LotSize),
			Expiry:        inst.Expiry.Time,
			Strike:        inst.StrikePrice,
			InstrType:     inst.InstrumentType,
		})
	}
	return result, nil
}

// PlaceOrder places a regular market order.
func (z *ZerodhaGateway) PlaceOrder(ctx context.Context, req models.OrderRequest) (string, error) {
	if !z.IsAuthenticated() {
		return "", errors.ErrNotAuthenticated
	}

	tradingsymbol := req.Symbol
	z.mu.RLock()
	resolver := z.resolver
	z.mu.RUnlock()
	if resolver != nil {
		contract, ok := resolver.Lookup(req.Symbol)
		if !ok {
			return "", fmt.Errorf("%w: %s", errors.ErrSymbolNotFound, req.Symbol)
		}
		tradingsymbol = contract.Tradingsymbol
	}

	exchange := req.Exchange
	if exchange == "" {
		exchange = models.NFO
	}
	product := req.Product
	if product == "" {
		product = z.product
	}
	orderType := req.Type
	if orderType == "" {
		orderType = models.OrderTypeMarket
	}

	params := kiteconnect.OrderParams{
		Exchange:        string(exchange),
		Tradingsymbol:   tradingsymbol,
		TransactionType: string(req.Side),
		OrderType:       string(orderType),
		Product:         string(product),
		Quantity:        req.Quantity,
		Validity:        "DAY",
		Tag:             req.Tag,
	}

	start := time.Now()
	resp, err := z.client.PlaceOrder(kiteconnect.VarietyRegular, params)
	logging.LogAPICall(z.logger, "POST", "/orders/regular", time.Since(start), err)
	if err != nil {
		return "", errors.NewBrokerError("ORDER", "failed to place order", err)
	}

	return resp.OrderID, nil
}

// FundsAndMargin returns equity segment cash and utilised debits.
func (z *ZerodhaGateway) FundsAndMargin(ctx context.Context) (models.Funds, error) {
	if !z.IsAuthenticated() {
		return models.Funds{}, errors.ErrNotAuthenticated
	}

	start := time.Now()
	margins, err := z.client.GetUserMargins()
	logging.LogAPICall(z.logger, "GET", "/user/margins", time.Since(start), err)
	if err != nil {
		return models.Funds{}, errors.NewBrokerError("MARGINS", "failed to get margins", err)
	}

	return models.Funds{
		AvailableCash:  margins.Equity.Available.Cash,
		UtilisedDebits: margins.Equity.Used.Debits,
	}, nil
}

var (
	_ Gateway        = (*ZerodhaGateway)(nil)
	_ ContractSource = (*ZerodhaGateway)(nil)
)
