package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kasuwa/escrow-api/internal/auth"
	"github.com/kasuwa/escrow-api/internal/codes"
	"github.com/kasuwa/escrow-api/internal/database"
	"github.com/kasuwa/escrow-api/internal/escrow"
	"github.com/kasuwa/escrow-api/internal/notify"
	"github.com/kasuwa/escrow-api/internal/payments"
	"github.com/kasuwa/escrow-api/internal/trade"
	"github.com/kasuwa/escrow-api/internal/types"
	"github.com/kasuwa/escrow-api/pkg/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const (
	minPurchases  = 10
	maxPurchases  = 60
	numTrades     = 12
	numWorkers    = 4
	numBuyers     = 6
	numSellers    = 4
	serverAddress = "http://localhost:8080"
	jwtSecret     = "simulation-secret-key"
	databasePath  = "simulation.db"
)

var offeredItems = []string{
	"PS4 console with two pads",
	"Standing fan, barely used",
	"HP laptop charger",
	"Office chair",
	"Blender and grinder set",
}

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for an API endpoint
type routeStats struct {
	name       string
	durations  []time.Duration
	totalCalls int
	failures   int
}

// addDuration records a new duration measurement for the route
func (rs *routeStats) addDuration(d time.Duration) {
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
}

// calculate computes performance statistics from recorded durations
// Returns min, max, mean, median, 95th percentile, and 99th percentile durations
func (rs *routeStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))
	median = rs.durations[len(rs.durations)/2]

	p95idx := int(math.Ceil(float64(len(rs.durations))*0.95)) - 1
	p99idx := int(math.Ceil(float64(len(rs.durations))*0.99)) - 1
	p95 = rs.durations[p95idx]
	p99 = rs.durations[p99idx]

	return
}

// simulationClient handles HTTP communication with the escrow API.
// Tokens are fetched per user up front; after that the map is read-only
// and safe to share across workers.
type simulationClient struct {
	baseURL string
	client  *http.Client
	tokens  map[string]string
	stats   map[string]*routeStats
	statsMu sync.Mutex
}

// newSimulationClient creates a new simulation client and authenticates
// every simulated user against the API
func newSimulationClient(userIDs []string) (*simulationClient, error) {
	sc := &simulationClient{
		baseURL: serverAddress,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		tokens: make(map[string]string),
		stats: map[string]*routeStats{
			"auth":     {name: "Authentication"},
			"initiate": {name: "Initiate Purchase"},
			"preview":  {name: "Fee Preview"},
			"get":      {name: "Get Escrow"},
			"confirm":  {name: "Confirm Receipt"},
			"lock":     {name: "Lock Trade"},
			"pickup":   {name: "Verify Pickup"},
			"dispute":  {name: "Raise Dispute"},
		},
	}

	for _, userID := range userIDs {
		token, err := sc.authenticate(userID)
		if err != nil {
			return nil, fmt.Errorf("failed to authenticate %s: %w", userID, err)
		}
		sc.tokens[userID] = token
	}

	return sc, nil
}

func (sc *simulationClient) track(route string, start time.Time, failed bool) {
	sc.statsMu.Lock()
	defer sc.statsMu.Unlock()
	sc.stats[route].addDuration(time.Since(start))
	if failed {
		sc.stats[route].failures++
	}
}

// authenticate exchanges a user's API credentials for a JWT token
func (sc *simulationClient) authenticate(userID string) (string, error) {
	start := time.Now()
	var failed bool
	defer func() { sc.track("auth", start, failed) }()

	credentials := map[string]string{
		"api_key":    "sim-key-" + userID,
		"api_secret": "sim-secret-" + userID,
	}

	body, err := json.Marshal(credentials)
	if err != nil {
		failed = true
		return "", err
	}

	resp, err := sc.client.Post(
		fmt.Sprintf("%s/api/v1/auth/token", sc.baseURL),
		"application/json",
		bytes.NewBuffer(body),
	)
	if err != nil {
		failed = true
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		failed = true
		return "", fmt.Errorf("authentication failed with status: %d", resp.StatusCode)
	}

	var result struct {
		Success bool `json:"success"`
		Data    struct {
			Token string `json:"jwt_token"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		failed = true
		return "", err
	}

	return result.Data.Token, nil
}

// do issues an authenticated request and decodes the response envelope's
// data field into out. A non-2xx status is returned as an error carrying
// the response body.
func (sc *simulationClient) do(route, method, path, userID string, payload, out interface{}) error {
	start := time.Now()
	var failed bool
	defer func() { sc.track(route, start, failed) }()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			failed = true
			return err
		}
		body = bytes.NewBuffer(raw)
	}

	req, err := http.NewRequest(method, sc.baseURL+path, body)
	if err != nil {
		failed = true
		return err
	}
	req.Header.Set("Authorization", "Bearer "+sc.tokens[userID])
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := sc.client.Do(req)
	if err != nil {
		failed = true
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		failed = true
		return fmt.Errorf("failed to read response body: %w", err)
	}
	log.Debug().Str("route", route).Str("response", string(respBody)).Msg("API response")

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		failed = true
		return fmt.Errorf("%s failed with status %d: %s", route, resp.StatusCode, string(respBody))
	}

	if out == nil {
		return nil
	}

	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		failed = true
		return fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}

	if err := json.Unmarshal(envelope.Data, out); err != nil {
		failed = true
		return fmt.Errorf("failed to decode response data: %w, body: %s", err, string(respBody))
	}

	return nil
}

// initiatePurchase starts an escrow purchase for a listing
func (sc *simulationClient) initiatePurchase(buyerID, listingID string) (*escrow.InitiateResponse, error) {
	var result escrow.InitiateResponse
	err := sc.do("initiate", "POST", "/api/v1/escrow/purchases", buyerID,
		escrow.InitiateRequest{ListingID: listingID}, &result)
	if err != nil {
		return nil, err
	}
	if result.Escrow == nil || result.Escrow.EscrowID == "" {
		return nil, fmt.Errorf("no escrow in initiate response")
	}
	return &result, nil
}

// previewFees fetches the fee breakdown for an arbitrary price
func (sc *simulationClient) previewFees(userID string, priceCents int64) error {
	path := fmt.Sprintf("/api/v1/escrow/fees/preview?price_cents=%d", priceCents)
	return sc.do("preview", "GET", path, userID, nil, nil)
}

// getEscrow fetches the escrow view for an order
func (sc *simulationClient) getEscrow(userID, orderID string) (*escrow.View, error) {
	var view escrow.View
	err := sc.do("get", "GET", "/api/v1/escrow/orders/"+orderID, userID, nil, &view)
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// confirmReceipt releases an escrow with the buyer's confirmation code
func (sc *simulationClient) confirmReceipt(buyerID, orderID, code string) (*escrow.ConfirmResult, error) {
	var result escrow.ConfirmResult
	err := sc.do("confirm", "POST", "/api/v1/escrow/orders/"+orderID+"/confirm", buyerID,
		escrow.ConfirmRequest{ConfirmationCode: code}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// lockTrade commits one party to a barter trade
func (sc *simulationClient) lockTrade(userID, offerID string) (*trade.OfferView, error) {
	var view trade.OfferView
	err := sc.do("lock", "POST", "/api/v1/trades/"+offerID+"/lock", userID, nil, &view)
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// getOffer fetches a trade offer as the given viewer
func (sc *simulationClient) getOffer(userID, offerID string) (*trade.OfferView, error) {
	var view trade.OfferView
	err := sc.do("get", "GET", "/api/v1/trades/"+offerID, userID, nil, &view)
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// verifyPickup completes a trade handover, with the buyer's PIN or manually
func (sc *simulationClient) verifyPickup(userID, offerID, pin string) (*trade.PickupResult, error) {
	var payload interface{}
	if pin != "" {
		payload = trade.PickupRequest{Pin: pin}
	}
	var result trade.PickupResult
	err := sc.do("pickup", "POST", "/api/v1/trades/"+offerID+"/pickup", userID, payload, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// raiseDispute freezes a trade for admin review
func (sc *simulationClient) raiseDispute(userID, offerID, reason string) error {
	return sc.do("dispute", "POST", "/api/v1/trades/"+offerID+"/dispute", userID,
		trade.DisputeRequest{Reason: reason}, nil)
}

// printPerformanceStats outputs formatted performance statistics for all API endpoints
func (sc *simulationClient) printPerformanceStats() {
	fmt.Println("\n📊 API Performance Statistics")
	fmt.Println(strings.Repeat("-", 100))
	fmt.Printf("%-20s %10s %10s %10s %10s %10s %10s %10s %10s\n",
		"Endpoint", "Calls", "Errors", "Min", "Max", "Mean", "Median", "P95", "P99")
	fmt.Println(strings.Repeat("-", 100))

	for _, stats := range sc.stats {
		min, max, mean, median, p95, p99 := stats.calculate()
		fmt.Printf("%-20s %10d %10d %10s %10s %10s %10s %10s %10s\n",
			stats.name,
			stats.totalCalls,
			stats.failures,
			min.Round(time.Millisecond),
			max.Round(time.Millisecond),
			mean.Round(time.Millisecond),
			median.Round(time.Millisecond),
			p95.Round(time.Millisecond),
			p99.Round(time.Millisecond))
	}
	fmt.Println(strings.Repeat("-", 100))
}

type seededListing struct {
	ListingID  string
	SellerID   string
	PriceCents int64
}

// main runs the marketplace simulation. It starts a local API server,
// seeds users, listings and accepted trade offers, then drives the full
// escrow and barter flows over HTTP with concurrent buyers.
func main() {
	db, userIDs, err := startServer()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start server")
	}

	// Wait for server to start
	time.Sleep(2 * time.Second)

	simClient, err := newSimulationClient(userIDs)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize simulation client")
	}

	targetPurchases := rand.Intn(maxPurchases-minPurchases) + minPurchases
	listings := seedListings(db, targetPurchases)
	offers := seedOffers(db)
	log.Info().
		Int("target_purchases", targetPurchases).
		Int("trade_offers", len(offers)).
		Msg("Starting simulation")

	stats := struct {
		TotalPurchases   int
		Held             int
		Released         int
		RejectedCodes    int
		FailedPurchases  int
		CompletedTrades  int
		DisputedTrades   int
		FailedTrades     int
		TotalValueCents  int64
		TotalFeesCents   int64
		StartTime        time.Time
		Tiers            map[string]int
	}{
		StartTime: time.Now(),
		Tiers:     make(map[string]int),
	}
	var statsMu sync.Mutex

	// Run concurrent buyers over the seeded listings
	listingsChan := make(chan seededListing, len(listings))
	for _, l := range listings {
		listingsChan <- l
	}
	close(listingsChan)

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for listing := range listingsChan {
				buyerID := pickBuyer(userIDs, listing.SellerID)

				resp, err := simClient.initiatePurchase(buyerID, listing.ListingID)
				if err != nil {
					log.Error().Err(err).
						Int("worker_id", workerID).
						Str("listing_id", listing.ListingID).
						Msg("Failed to initiate purchase")
					statsMu.Lock()
					stats.FailedPurchases++
					statsMu.Unlock()
					continue
				}

				log.Info().
					Int("worker_id", workerID).
					Str("escrow_id", resp.Escrow.EscrowID).
					Str("status", resp.Escrow.Status).
					Int64("total_paid_cents", resp.Fees.TotalPaidCents).
					Msg("Purchase initiated")

				// Some buyers fat-finger the code first; the escrow must
				// survive the rejection and release on the real code
				rejected := false
				if rand.Intn(4) == 0 {
					if _, err := simClient.confirmReceipt(buyerID, resp.Escrow.OrderID, "000000"); err != nil {
						rejected = true
						log.Info().
							Str("order_id", resp.Escrow.OrderID).
							Msg("Wrong confirmation code rejected")
					}
				}

				result, err := simClient.confirmReceipt(buyerID, resp.Escrow.OrderID, resp.ConfirmationCode)
				if err != nil {
					log.Error().Err(err).
						Str("order_id", resp.Escrow.OrderID).
						Msg("Failed to confirm receipt")
					statsMu.Lock()
					stats.Held++
					statsMu.Unlock()
					continue
				}

				statsMu.Lock()
				stats.Released++
				if rejected {
					stats.RejectedCodes++
				}
				stats.TotalValueCents += resp.Fees.ItemPriceCents
				stats.TotalFeesCents += resp.Fees.ProtectionFeeCents + resp.Fees.CommissionCents
				stats.Tiers[tierFor(resp.Fees.ItemPriceCents)]++
				statsMu.Unlock()

				log.Info().
					Str("order_id", resp.Escrow.OrderID).
					Int64("seller_receives_cents", result.SellerReceivesCents).
					Msg("Escrow released")

				time.Sleep(time.Duration(rand.Intn(200)) * time.Millisecond)
			}
		}(i)
	}
	wg.Wait()
	stats.TotalPurchases = len(listings)

	// A couple of fee previews, as a browsing buyer would trigger
	for _, price := range []int64{2_000_000, 25_000_000, 80_000_000} {
		if err := simClient.previewFees(userIDs[0], price); err != nil {
			log.Error().Err(err).Int64("price_cents", price).Msg("Failed to preview fees")
		}
	}

	// Drive the barter trades sequentially: lock both sides, then complete
	// by PIN pickup, manual dual approval, or dispute
	for i, offer := range offers {
		if err := runTrade(simClient, offer, i); err != nil {
			log.Error().Err(err).Str("offer_id", offer.OfferID).Msg("Trade failed")
			stats.FailedTrades++
			continue
		}
		if i%4 == 3 {
			stats.DisputedTrades++
		} else {
			stats.CompletedTrades++
		}
	}

	printSummary(stats.TotalPurchases, stats.Released, stats.RejectedCodes, stats.FailedPurchases,
		stats.CompletedTrades, stats.DisputedTrades, stats.FailedTrades,
		stats.TotalValueCents, stats.TotalFeesCents, stats.Tiers, time.Since(stats.StartTime))

	simClient.printPerformanceStats()
}

// runTrade drives one seeded offer through lock and fulfillment. Every
// fourth offer ends in a dispute instead of a completion.
func runTrade(simClient *simulationClient, offer *trade.TradeOffer, i int) error {
	if _, err := simClient.lockTrade(offer.BuyerID, offer.OfferID); err != nil {
		return err
	}
	view, err := simClient.lockTrade(offer.SellerID, offer.OfferID)
	if err != nil {
		return err
	}
	log.Info().
		Str("offer_id", offer.OfferID).
		Str("status", view.Status).
		Msg("Both parties locked in")

	switch i % 4 {
	case 3:
		// Dispute path
		if err := simClient.raiseDispute(offer.BuyerID, offer.OfferID, "Item not as described"); err != nil {
			return err
		}
		log.Info().Str("offer_id", offer.OfferID).Msg("Trade disputed")
		return nil

	case 2:
		// Manual dual approval
		if _, err := simClient.verifyPickup(offer.BuyerID, offer.OfferID, ""); err != nil {
			return err
		}
		result, err := simClient.verifyPickup(offer.SellerID, offer.OfferID, "")
		if err != nil {
			return err
		}
		log.Info().
			Str("offer_id", offer.OfferID).
			Bool("just_completed", result.JustCompleted).
			Msg("Trade completed manually")
		return nil

	default:
		// PIN pickup: the buyer reads their PIN and hands it to the seller
		buyerView, err := simClient.getOffer(offer.BuyerID, offer.OfferID)
		if err != nil {
			return err
		}
		if buyerView.PickupPin == "" {
			return fmt.Errorf("no pickup PIN visible to buyer")
		}
		result, err := simClient.verifyPickup(offer.SellerID, offer.OfferID, buyerView.PickupPin)
		if err != nil {
			return err
		}
		log.Info().
			Str("offer_id", offer.OfferID).
			Bool("just_completed", result.JustCompleted).
			Msg("Trade completed by PIN")
		return nil
	}
}

func pickBuyer(userIDs []string, sellerID string) string {
	for {
		candidate := userIDs[rand.Intn(numBuyers)]
		if candidate != sellerID {
			return candidate
		}
	}
}

func tierFor(priceCents int64) string {
	switch {
	case priceCents < 10_000_000:
		return "TIER_1"
	case priceCents < 50_000_000:
		return "TIER_2"
	default:
		return "TIER_3"
	}
}

// seedListings creates distress-sale listings spread across the fee tiers
func seedListings(db *gorm.DB, count int) []seededListing {
	listings := make([]seededListing, 0, count)
	for i := 0; i < count; i++ {
		sellerID := fmt.Sprintf("seller-%d", rand.Intn(numSellers)+1)

		// Spread prices across the fee tiers, weighted towards tier 1
		var priceCents int64
		switch rand.Intn(6) {
		case 0:
			priceCents = int64(rand.Intn(40_000_000)) + 10_000_000
		case 1:
			priceCents = int64(rand.Intn(50_000_000)) + 50_000_000
		default:
			priceCents = int64(rand.Intn(9_500_000)) + 500_000
		}

		listing := types.Listing{
			ListingID:      "LST_" + uuid.New().String(),
			SellerID:       sellerID,
			Title:          fmt.Sprintf("Simulated listing %d", i+1),
			PriceCents:     priceCents,
			CurrencyCode:   "NGN",
			IsDistressSale: true,
			Status:         types.ListingStatusActive,
		}
		if err := db.Create(&listing).Error; err != nil {
			log.Fatal().Err(err).Msg("Failed to seed listing")
		}
		listings = append(listings, seededListing{
			ListingID:  listing.ListingID,
			SellerID:   sellerID,
			PriceCents: priceCents,
		})
	}
	return listings
}

// seedOffers creates accepted barter offers between random buyer/seller pairs
func seedOffers(db *gorm.DB) []*trade.TradeOffer {
	offers := make([]*trade.TradeOffer, 0, numTrades)
	for i := 0; i < numTrades; i++ {
		sellerID := fmt.Sprintf("seller-%d", rand.Intn(numSellers)+1)
		offer := &trade.TradeOffer{
			OfferID:     "TRD_" + uuid.New().String(),
			BuyerID:     fmt.Sprintf("buyer-%d", rand.Intn(numBuyers)+1),
			SellerID:    sellerID,
			ListingID:   "LST_" + uuid.New().String(),
			OfferedItem: offeredItems[rand.Intn(len(offeredItems))],
			Status:      trade.StatusAccepted,
		}
		if err := db.Create(offer).Error; err != nil {
			log.Fatal().Err(err).Msg("Failed to seed trade offer")
		}
		offers = append(offers, offer)
	}
	return offers
}

func printSummary(total, released, rejectedCodes, failedPurchases,
	completedTrades, disputedTrades, failedTrades int,
	valueCents, feesCents int64, tiers map[string]int, duration time.Duration) {

	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("🚀 MARKETPLACE SIMULATION SUMMARY")
	fmt.Println(strings.Repeat("=", 80))

	fmt.Printf(`
📊 Escrow Statistics
--------------------
Total Purchases:   %d
Released:          %d
Rejected Codes:    %d
Failed Purchases:  %d
Total Value:       ₦%.2f
Total Fees:        ₦%.2f

🤝 Trade Statistics
-------------------
Completed:         %d
Disputed:          %d
Failed:            %d
Duration:          %v

📈 Fee Tier Distribution
------------------------
`, total, released, rejectedCodes, failedPurchases,
		float64(valueCents)/100, float64(feesCents)/100,
		completedTrades, disputedTrades, failedTrades,
		duration.Round(time.Millisecond))

	maxTierCount := 0
	for _, count := range tiers {
		if count > maxTierCount {
			maxTierCount = count
		}
	}
	for _, tier := range []string{"TIER_1", "TIER_2", "TIER_3"} {
		count := tiers[tier]
		barLength := 0
		if maxTierCount > 0 {
			barLength = int(float64(count) / float64(maxTierCount) * 20)
		}
		fmt.Printf("%-7s: %s (%d)\n", tier, strings.Repeat("█", barLength), count)
	}

	fmt.Println("\n" + strings.Repeat("=", 80))

	successRate := 0.0
	if total > 0 {
		successRate = float64(released) / float64(total) * 100
	}
	log.Info().
		Float64("success_rate", successRate).
		Int("total_purchases", total).
		Int("released", released).
		Int("completed_trades", completedTrades).
		Dur("duration", duration).
		Msg("Simulation completed")
}

// startServer initializes the API server on a fresh database and runs it
// in the background. Returns the database handle for seeding and the set
// of simulated user IDs, all registered with API credentials.
func startServer() (*gorm.DB, []string, error) {
	// Start clean on every run
	_ = os.Remove(databasePath)

	db, err := database.NewDatabase(databasePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	authService := auth.NewService(jwtSecret)

	var userIDs []string
	for i := 1; i <= numBuyers; i++ {
		userIDs = append(userIDs, fmt.Sprintf("buyer-%d", i))
	}
	for i := 1; i <= numSellers; i++ {
		userIDs = append(userIDs, fmt.Sprintf("seller-%d", i))
	}
	for _, userID := range userIDs {
		authService.RegisterAPICredentials("sim-key-"+userID, "sim-secret-"+userID, userID)
		user := types.User{
			UserID: userID,
			Name:   "Simulated " + userID,
			Email:  userID + "@example.com",
		}
		if err := db.Create(&user).Error; err != nil {
			return nil, nil, fmt.Errorf("failed to seed user: %w", err)
		}
	}

	notifier := notify.NewRelay(db)
	mailer := notify.NewLogMailer()
	generator := codes.NewCryptoGenerator()
	providers := payments.NewRegistry(payments.NewMockProvider())

	escrowService := escrow.NewService(db, notifier, mailer, generator, providers, 24*time.Hour)
	tradeService := trade.NewService(db, notifier, generator)

	router := gin.Default()
	authHandlers := auth.NewGinHandlers(authService)
	escrowHandlers := escrow.NewGinHandlers(escrowService)
	tradeHandlers := trade.NewGinHandlers(tradeService)

	setupRoutes(router, authHandlers, escrowHandlers, tradeHandlers)

	go func() {
		if err := router.Run(":8080"); err != nil {
			log.Fatal().Err(err).Msg("Server stopped")
		}
	}()

	return db, userIDs, nil
}

// setupRoutes configures the simulated API surface. The rate limiting and
// internal-auth middleware from the production server are left off so the
// simulation can hammer the endpoints freely.
func setupRoutes(
	router *gin.Engine,
	authHandlers *auth.GinHandlers,
	escrowHandlers *escrow.GinHandlers,
	tradeHandlers *trade.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		escrowGroup := v1.Group("/escrow")
		escrowGroup.Use(middleware.JWTAuth(jwtSecret))
		{
			escrowGroup.POST("/purchases", escrowHandlers.InitiateHandler())
			escrowGroup.GET("/orders/:order_id", escrowHandlers.GetByOrderIDHandler())
			escrowGroup.POST("/orders/:order_id/confirm", escrowHandlers.ConfirmReceiptHandler())
			escrowGroup.GET("/fees/preview", escrowHandlers.PreviewFeesHandler())
		}

		tradeGroup := v1.Group("/trades")
		tradeGroup.Use(middleware.JWTAuth(jwtSecret))
		{
			tradeGroup.GET("/:offer_id", tradeHandlers.GetOfferHandler())
			tradeGroup.POST("/:offer_id/lock", tradeHandlers.LockDealHandler())
			tradeGroup.POST("/:offer_id/pickup", tradeHandlers.VerifyPickupHandler())
			tradeGroup.POST("/:offer_id/dispute", tradeHandlers.RaiseDisputeHandler())
		}
	}
}
