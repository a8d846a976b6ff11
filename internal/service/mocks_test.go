package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"studio-api/internal/crm"
	"studio-api/internal/domain"
	"studio-api/internal/notifier"
	"studio-api/internal/payment"
	"studio-api/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Mock repositories for testing
type mockUserRepository struct {
	users map[string]*domain.User
}

func newMockUserRepository() *mockUserRepository {
	return &mockUserRepository{
		users: make(map[string]*domain.User),
	}
}

func (m *mockUserRepository) Create(ctx context.Context, user *domain.User) error {
	if _, exists := m.users[user.Email]; exists {
		return repository.ErrUserAlreadyExists
	}
	m.users[user.Email] = user
	return nil
}

func (m *mockUserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	user, exists := m.users[email]
	if !exists {
		return nil, repository.ErrUserNotFound
	}
	return user, nil
}

func (m *mockUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	for _, user := range m.users {
		if user.ID == id {
			return user, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (m *mockUserRepository) UpdateProfile(ctx context.Context, user *domain.User) error {
	if _, err := m.FindByID(ctx, user.ID); err != nil {
		return err
	}
	m.users[user.Email] = user
	return nil
}

func (m *mockUserRepository) UpdateNotes(ctx context.Context, id uuid.UUID, notes string, tags []string) error {
	user, err := m.FindByID(ctx, id)
	if err != nil {
		return err
	}
	user.Notes = notes
	user.Tags = tags
	return nil
}

func (m *mockUserRepository) ListClients(ctx context.Context, search string, page, pageSize int) ([]*domain.ClientSummary, int, error) {
	clients := []*domain.ClientSummary{}
	for _, user := range m.users {
		if user.Role == domain.RoleClient {
			clients = append(clients, &domain.ClientSummary{User: *user})
		}
	}
	return clients, len(clients), nil
}

func (m *mockUserRepository) add(role string) *domain.User {
	user := &domain.User{
		ID:        uuid.New(),
		Email:     uuid.NewString() + "@example.com",
		FirstName: "Test",
		LastName:  role,
		Role:      role,
	}
	m.users[user.Email] = user
	return user
}

type mockRefreshTokenRepository struct {
	tokens map[string]*domain.RefreshToken
}

func newMockRefreshTokenRepository() *mockRefreshTokenRepository {
	return &mockRefreshTokenRepository{
		tokens: make(map[string]*domain.RefreshToken),
	}
}

func (m *mockRefreshTokenRepository) Create(ctx context.Context, token *domain.RefreshToken) error {
	m.tokens[token.Token] = token
	return nil
}

func (m *mockRefreshTokenRepository) FindByToken(ctx context.Context, token string) (*domain.RefreshToken, error) {
	refreshToken, exists := m.tokens[token]
	if !exists {
		return nil, repository.ErrRefreshTokenNotFound
	}
	if refreshToken.Revoked {
		return nil, repository.ErrRefreshTokenRevoked
	}
	return refreshToken, nil
}

func (m *mockRefreshTokenRepository) Revoke(ctx context.Context, token string) error {
	refreshToken, exists := m.tokens[token]
	if !exists {
		return repository.ErrRefreshTokenNotFound
	}
	refreshToken.Revoked = true
	return nil
}

func (m *mockRefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	var n int64
	for _, token := range m.tokens {
		if token.UserID == userID && !token.Revoked {
			token.Revoked = true
			n++
		}
	}
	return n, nil
}

type mockServiceRepository struct {
	services map[uuid.UUID]*domain.Service
}

func newMockServiceRepository() *mockServiceRepository {
	return &mockServiceRepository{services: make(map[uuid.UUID]*domain.Service)}
}

func (m *mockServiceRepository) Create(ctx context.Context, svc *domain.Service) error {
	for _, existing := range m.services {
		if existing.Slug == svc.Slug {
			return repository.ErrServiceAlreadyExists
		}
	}
	m.services[svc.ID] = svc
	return nil
}

func (m *mockServiceRepository) Update(ctx context.Context, svc *domain.Service) error {
	if _, ok := m.services[svc.ID]; !ok {
		return repository.ErrServiceNotFound
	}
	m.services[svc.ID] = svc
	return nil
}

func (m *mockServiceRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	svc, ok := m.services[id]
	if !ok {
		return repository.ErrServiceNotFound
	}
	svc.Active = active
	return nil
}

func (m *mockServiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Service, error) {
	svc, ok := m.services[id]
	if !ok {
		return nil, repository.ErrServiceNotFound
	}
	copied := *svc
	return &copied, nil
}

func (m *mockServiceRepository) List(ctx context.Context, category string, includeInactive bool) ([]*domain.Service, error) {
	out := []*domain.Service{}
	for _, svc := range m.services {
		if (category == "" || svc.Category == category) && (includeInactive || svc.Active) {
			out = append(out, svc)
		}
	}
	return out, nil
}

// mockBookingRepository enforces the no-overlap rule under a mutex, standing
// in for the transactional check of the real repository.
type mockBookingRepository struct {
	mu       sync.Mutex
	bookings map[uuid.UUID]*domain.Booking
}

func newMockBookingRepository() *mockBookingRepository {
	return &mockBookingRepository{bookings: make(map[uuid.UUID]*domain.Booking)}
}

func isActive(status domain.BookingStatus) bool {
	for _, s := range domain.ActiveBookingStatuses {
		if s == status {
			return true
		}
	}
	return false
}

func (m *mockBookingRepository) CreateWithNoOverlap(ctx context.Context, b *domain.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	candidate := domain.Interval{Start: b.StartsAt, End: b.EndsAt()}
	for _, existing := range m.bookings {
		if existing.StaffID != b.StaffID || !isActive(existing.Status) {
			continue
		}
		if candidate.Overlaps(domain.Interval{Start: existing.StartsAt, End: existing.EndsAt()}) {
			return repository.ErrSlotTaken
		}
	}
	copied := *b
	m.bookings[b.ID] = &copied
	return nil
}

func (m *mockBookingRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, repository.ErrBookingNotFound
	}
	copied := *b
	return &copied, nil
}

func (m *mockBookingRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.BookingStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return repository.ErrBookingNotFound
	}
	if b.Status != from {
		return repository.ErrStatusChanged
	}
	b.Status = to
	return nil
}

func (m *mockBookingRepository) Cancel(ctx context.Context, id uuid.UUID, from domain.BookingStatus, reason string, at time.Time) error {
	if err := m.UpdateStatus(ctx, id, from, domain.BookingCancelled); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bookings[id].CancellationReason = reason
	m.bookings[id].CancelledAt = &at
	return nil
}

func (m *mockBookingRepository) BusyIntervals(ctx context.Context, staffID uuid.UUID, from, to time.Time) ([]domain.Interval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	window := domain.Interval{Start: from, End: to}
	busy := []domain.Interval{}
	for _, b := range m.bookings {
		iv := domain.Interval{Start: b.StartsAt, End: b.EndsAt()}
		if b.StaffID == staffID && isActive(b.Status) && iv.Overlaps(window) {
			busy = append(busy, iv)
		}
	}
	return busy, nil
}

func (m *mockBookingRepository) ListByClient(ctx context.Context, clientID uuid.UUID, after *time.Time) ([]*domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*domain.Booking{}
	for _, b := range m.bookings {
		if b.ClientID == clientID && (after == nil || b.StartsAt.After(*after)) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	return out, nil
}

func (m *mockBookingRepository) List(ctx context.Context, f domain.BookingFilter) ([]*domain.Booking, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*domain.Booking{}
	for _, b := range m.bookings {
		if f.StaffID != nil && b.StaffID != *f.StaffID {
			continue
		}
		if f.Status != nil && b.Status != *f.Status {
			continue
		}
		if f.From != nil && b.StartsAt.Before(*f.From) {
			continue
		}
		if f.To != nil && !b.StartsAt.Before(*f.To) {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	total := len(out)
	if f.PageSize > 0 {
		page := max(f.Page, 1)
		start := min((page-1)*f.PageSize, total)
		out = out[start:min(start+f.PageSize, total)]
	}
	return out, total, nil
}

type mockLoyaltyRepository struct {
	mu           sync.Mutex
	transactions []*domain.LoyaltyTransaction
}

func newMockLoyaltyRepository() *mockLoyaltyRepository {
	return &mockLoyaltyRepository{}
}

func (m *mockLoyaltyRepository) Insert(ctx context.Context, t *domain.LoyaltyTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ReferenceID != "" {
		for _, existing := range m.transactions {
			if existing.ClientID == t.ClientID && existing.Reason == t.Reason && existing.ReferenceID == t.ReferenceID {
				return repository.ErrAlreadyAwarded
			}
		}
	}
	m.transactions = append(m.transactions, t)
	return nil
}

func (m *mockLoyaltyRepository) Redeem(ctx context.Context, t *domain.LoyaltyTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.balance(t.ClientID)+t.Points < 0 {
		return repository.ErrInsufficientPoints
	}
	m.transactions = append(m.transactions, t)
	return nil
}

func (m *mockLoyaltyRepository) Balance(ctx context.Context, clientID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balance(clientID), nil
}

func (m *mockLoyaltyRepository) balance(clientID uuid.UUID) int {
	total := 0
	for _, t := range m.transactions {
		if t.ClientID == clientID {
			total += t.Points
		}
	}
	return total
}

func (m *mockLoyaltyRepository) Recent(ctx context.Context, clientID uuid.UUID, limit int) ([]*domain.LoyaltyTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*domain.LoyaltyTransaction{}
	for i := len(m.transactions) - 1; i >= 0 && len(out) < limit; i-- {
		if m.transactions[i].ClientID == clientID {
			out = append(out, m.transactions[i])
		}
	}
	return out, nil
}

type mockReviewRepository struct {
	reviews map[uuid.UUID]*domain.Review
}

func newMockReviewRepository() *mockReviewRepository {
	return &mockReviewRepository{reviews: make(map[uuid.UUID]*domain.Review)}
}

func (m *mockReviewRepository) Create(ctx context.Context, rv *domain.Review) error {
	if rv.BookingID != nil {
		for _, existing := range m.reviews {
			if existing.BookingID != nil && *existing.BookingID == *rv.BookingID {
				return repository.ErrBookingAlreadyRated
			}
		}
	}
	copied := *rv
	m.reviews[rv.ID] = &copied
	return nil
}

func (m *mockReviewRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Review, error) {
	rv, ok := m.reviews[id]
	if !ok {
		return nil, repository.ErrReviewNotFound
	}
	copied := *rv
	return &copied, nil
}

func (m *mockReviewRepository) UpdateModeration(ctx context.Context, rv *domain.Review) error {
	if _, ok := m.reviews[rv.ID]; !ok {
		return repository.ErrReviewNotFound
	}
	copied := *rv
	m.reviews[rv.ID] = &copied
	return nil
}

func (m *mockReviewRepository) ListPublic(ctx context.Context, limit int) ([]*domain.Review, error) {
	out := []*domain.Review{}
	for _, rv := range m.reviews {
		if rv.Status.Public() {
			out = append(out, rv)
		}
	}
	return out, nil
}

func (m *mockReviewRepository) ListByStatus(ctx context.Context, status *domain.ReviewStatus) ([]*domain.Review, error) {
	out := []*domain.Review{}
	for _, rv := range m.reviews {
		if status == nil || rv.Status == *status {
			out = append(out, rv)
		}
	}
	return out, nil
}

func (m *mockReviewRepository) Summary(ctx context.Context) (*domain.ReviewSummary, error) {
	summary := &domain.ReviewSummary{}
	total := 0
	for _, rv := range m.reviews {
		if rv.Status.Public() {
			summary.TotalCount++
			total += rv.Rating
		}
	}
	if summary.TotalCount > 0 {
		summary.AverageRating = float64(total) / float64(summary.TotalCount)
	}
	return summary, nil
}

type mockProductRepository struct {
	products map[uuid.UUID]*domain.Product
}

func newMockProductRepository() *mockProductRepository {
	return &mockProductRepository{products: make(map[uuid.UUID]*domain.Product)}
}

func (m *mockProductRepository) Create(ctx context.Context, p *domain.Product) error {
	for _, existing := range m.products {
		if existing.Slug == p.Slug {
			return repository.ErrProductAlreadyExists
		}
	}
	m.products[p.ID] = p
	return nil
}

func (m *mockProductRepository) Update(ctx context.Context, p *domain.Product) error {
	if _, ok := m.products[p.ID]; !ok {
		return repository.ErrProductNotFound
	}
	m.products[p.ID] = p
	return nil
}

func (m *mockProductRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	p, ok := m.products[id]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	copied := *p
	return &copied, nil
}

func (m *mockProductRepository) FindBySlug(ctx context.Context, slug string) (*domain.Product, error) {
	for _, p := range m.products {
		if p.Slug == slug {
			copied := *p
			return &copied, nil
		}
	}
	return nil, repository.ErrProductNotFound
}

func (m *mockProductRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.Product, error) {
	out := make(map[uuid.UUID]*domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			copied := *p
			out[id] = &copied
		}
	}
	return out, nil
}

func (m *mockProductRepository) List(ctx context.Context, f repository.ProductFilter) ([]*domain.Product, int, error) {
	out := []*domain.Product{}
	for _, p := range m.products {
		if f.PublishedOnly && !p.Published {
			continue
		}
		out = append(out, p)
	}
	return out, len(out), nil
}

func (m *mockProductRepository) add(title string, pricing domain.PricingType, availability domain.Availability, price int64, stock int) *domain.Product {
	p := &domain.Product{
		ID:           uuid.New(),
		Title:        title,
		Slug:         slugify(title),
		PricingType:  pricing,
		PriceCents:   price,
		Availability: availability,
		StockCount:   stock,
		Published:    true,
	}
	m.products[p.ID] = p
	return p
}

// mockOrderRepository shares its product map with mockProductRepository so
// stock movements are visible to both.
type mockOrderRepository struct {
	orders   map[uuid.UUID]*domain.Order
	products *mockProductRepository
}

func newMockOrderRepository(products *mockProductRepository) *mockOrderRepository {
	return &mockOrderRepository{orders: make(map[uuid.UUID]*domain.Order), products: products}
}

func (m *mockOrderRepository) PlaceOrders(ctx context.Context, orders []*domain.Order, decrements map[uuid.UUID]int) error {
	for id, qty := range decrements {
		if p := m.products.products[id]; p == nil || p.StockCount < qty {
			return repository.ErrInsufficientStock
		}
	}
	for id, qty := range decrements {
		m.products.products[id].StockCount -= qty
	}
	for _, o := range orders {
		copied := *o
		m.orders[o.ID] = &copied
	}
	return nil
}

func (m *mockOrderRepository) SetPaymentLink(ctx context.Context, orderNumber, sessionID, url string) error {
	found := false
	for _, o := range m.orders {
		if o.OrderNumber == orderNumber {
			o.PaymentSessionID = sessionID
			o.PaymentURL = url
			found = true
		}
	}
	if !found {
		return repository.ErrOrderNotFound
	}
	return nil
}

func (m *mockOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	copied := *o
	return &copied, nil
}

func (m *mockOrderRepository) FindByNumber(ctx context.Context, orderNumber string) ([]*domain.Order, error) {
	out := []*domain.Order{}
	for _, o := range m.orders {
		if o.OrderNumber == orderNumber {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return nil, repository.ErrOrderNotFound
	}
	return out, nil
}

func (m *mockOrderRepository) MarkPaidBySession(ctx context.Context, sessionID string) ([]*domain.Order, error) {
	out := []*domain.Order{}
	for _, o := range m.orders {
		if o.PaymentSessionID == sessionID && o.Status == domain.OrderPending {
			o.Status = domain.OrderPaid
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *mockOrderRepository) FindBySession(ctx context.Context, sessionID string) ([]*domain.Order, error) {
	out := []*domain.Order{}
	if sessionID == "" {
		return out, nil
	}
	for _, o := range m.orders {
		if o.PaymentSessionID == sessionID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *mockOrderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.OrderStatus, restock bool) error {
	o, ok := m.orders[id]
	if !ok || o.Status != from {
		return repository.ErrOrderNotFound
	}
	o.Status = to
	if restock {
		if p := m.products.products[o.ProductID]; p != nil && p.TracksStock() {
			p.StockCount += o.Quantity
		}
	}
	return nil
}

func (m *mockOrderRepository) ListByClient(ctx context.Context, clientID uuid.UUID) ([]*domain.Order, error) {
	out := []*domain.Order{}
	for _, o := range m.orders {
		if o.ClientID == clientID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *mockOrderRepository) List(ctx context.Context, status *domain.OrderStatus, page, pageSize int) ([]*domain.Order, int, error) {
	out := []*domain.Order{}
	for _, o := range m.orders {
		if status == nil || o.Status == *status {
			out = append(out, o)
		}
	}
	return out, len(out), nil
}

// Integration fakes

type recordingMailer struct {
	mu   sync.Mutex
	jobs []notifier.EmailJob
	err  error
}

func (m *recordingMailer) Enqueue(ctx context.Context, job notifier.EmailJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.jobs = append(m.jobs, job)
	return nil
}

func (m *recordingMailer) templates() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.jobs))
	for _, job := range m.jobs {
		out = append(out, job.Template)
	}
	return out
}

type recordingDeals struct {
	mu    sync.Mutex
	deals []crm.DealEvent
	err   error
}

func (d *recordingDeals) PublishDeal(ctx context.Context, deal crm.DealEvent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.deals = append(d.deals, deal)
	return nil
}

type syncEntry struct {
	provider string
	status   string
	entityID string
}

type recordingSync struct {
	mu      sync.Mutex
	entries []syncEntry
}

func (r *recordingSync) Success(ctx context.Context, provider, entityType, entityID, message string) {
	r.add(provider, domain.SyncSuccess, entityID)
}

func (r *recordingSync) Failure(ctx context.Context, provider, entityType, entityID string, err error) {
	r.add(provider, domain.SyncError, entityID)
}

func (r *recordingSync) Inbound(ctx context.Context, provider, entityType, entityID, message string) {
	r.add(provider, "inbound", entityID)
}

func (r *recordingSync) add(provider, status, entityID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, syncEntry{provider: provider, status: status, entityID: entityID})
}

func (r *recordingSync) failures(provider string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if e.provider == provider && e.status == domain.SyncError {
			n++
		}
	}
	return n
}

type fakeLinks struct {
	err      error
	requests []payment.LinkRequest
}

func (f *fakeLinks) CreateLink(ctx context.Context, req payment.LinkRequest) (*payment.Link, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &payment.Link{SessionID: "cs_" + req.OrderNumber, URL: "https://pay.example.com/" + req.OrderNumber}, nil
}

var errIntegrationDown = errors.New("integration unavailable")

// flakyLoyalty fails the first n awards, then delegates
type flakyLoyalty struct {
	LoyaltyService
	mu       sync.Mutex
	failures int
}

func (f *flakyLoyalty) Award(ctx context.Context, clientID uuid.UUID, points int, reason domain.LoyaltyReason, referenceID, description string) (bool, error) {
	f.mu.Lock()
	if f.failures > 0 {
		f.failures--
		f.mu.Unlock()
		return false, errIntegrationDown
	}
	f.mu.Unlock()
	return f.LoyaltyService.Award(ctx, clientID, points, reason, referenceID, description)
}

type integrations struct {
	mailer     *recordingMailer
	deals      *recordingDeals
	sync       *recordingSync
	dispatcher *Dispatcher
}

func newIntegrations() *integrations {
	in := &integrations{
		mailer: &recordingMailer{},
		deals:  &recordingDeals{},
		sync:   &recordingSync{},
	}
	in.dispatcher = NewDispatcher(in.mailer, in.deals, in.sync, zap.NewNop())
	return in
}
