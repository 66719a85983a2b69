package licensing

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"crypto-trading-saas/internal/database"
	"crypto-trading-saas/internal/license"
	"crypto-trading-saas/internal/plans"
)

// memStore is an in-memory Store with the same CAS semantics as the
// repository
type memStore struct {
	mu       sync.Mutex
	licenses map[string]*database.ForexLicense
	codes    map[string]*database.LicenseCode
	usage    []*database.LicenseUsageLog
	err      error // forced infrastructure failure
}

func newMemStore() *memStore {
	return &memStore{
		licenses: make(map[string]*database.ForexLicense),
		codes:    make(map[string]*database.LicenseCode),
	}
}

func (s *memStore) CreateForexLicense(ctx context.Context, lic *database.ForexLicense) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if _, exists := s.licenses[lic.LicenseKey]; exists {
		return errors.New("duplicate key")
	}
	s.licenses[lic.LicenseKey] = lic
	return nil
}

func (s *memStore) GetForexLicenseByKey(ctx context.Context, key string) (*database.ForexLicense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.licenses[key], nil
}

func (s *memStore) UpdateForexLicense(ctx context.Context, key string, fn func(*database.ForexLicense) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	lic, ok := s.licenses[key]
	if !ok {
		return errors.New("license not found")
	}
	copied := *lic
	if err := fn(&copied); err != nil {
		return err
	}
	*lic = copied
	return nil
}

func (s *memStore) CreateLicenseCode(ctx context.Context, lc *database.LicenseCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.codes[lc.Code] = lc
	return nil
}

func (s *memStore) GetLicenseCode(ctx context.Context, code string) (*database.LicenseCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.codes[code], nil
}

func (s *memStore) BindLicenseCodeMachine(ctx context.Context, code, machineID, activatedBy string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	lc, ok := s.codes[code]
	if !ok || !lc.IsActive {
		return false, nil
	}
	if lc.MachineID != "" && lc.MachineID != machineID {
		return false, nil
	}
	lc.MachineID = machineID
	if lc.ActivatedAt == nil {
		now := time.Now()
		lc.ActivatedAt = &now
		lc.ActivatedBy = activatedBy
	}
	return true, nil
}

func (s *memStore) LogLicenseUsage(ctx context.Context, entry *database.LicenseUsageLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage = append(s.usage, entry)
	return nil
}

func testManager(store Store) *Manager {
	return NewManager(store, zerolog.Nop())
}

func TestCreateForexLicenseMonthly(t *testing.T) {
	store := newMemStore()
	m := testManager(store)

	lic, err := m.CreateForexLicense(context.Background(), "user-1", license.ForexPlanMonthly)
	if err != nil {
		t.Fatalf("CreateForexLicense failed: %v", err)
	}
	if !license.ValidateForexKeyFormat(lic.LicenseKey) {
		t.Errorf("minted key %q is malformed", lic.LicenseKey)
	}
	if lic.Status != database.StatusActive || lic.PaymentStatus != database.PaymentCompleted {
		t.Errorf("unexpected status %s/%s", lic.Status, lic.PaymentStatus)
	}
	if lic.ExpiresAt == nil {
		t.Fatal("monthly license has no expiry")
	}

	days := time.Until(*lic.ExpiresAt).Hours() / 24
	if days < 29.9 || days > 30.1 {
		t.Errorf("expiry %.1f days out, want ~30", days)
	}
}

func TestCreateForexLicenseLifetimeNoExpiry(t *testing.T) {
	store := newMemStore()
	m := testManager(store)

	lic, err := m.CreateForexLicense(context.Background(), "user-1", license.ForexPlanLifetime)
	if err != nil {
		t.Fatalf("CreateForexLicense failed: %v", err)
	}
	if lic.ExpiresAt != nil {
		t.Errorf("lifetime license has expiry %v", lic.ExpiresAt)
	}
}

// TestRenewForexLicenseEarly renewing a key with 10 days left yields
// current expiry + 30 days, not now + 30
func TestRenewForexLicenseEarly(t *testing.T) {
	store := newMemStore()
	current := time.Now().Add(10 * 24 * time.Hour)
	store.licenses["FX-MO-ABCDEF12-ABC123-XY9Z"] = &database.ForexLicense{
		LicenseKey: "FX-MO-ABCDEF12-ABC123-XY9Z",
		PlanType:   license.ForexPlanMonthly,
		Status:     database.StatusActive,
		ExpiresAt:  &current,
	}
	m := testManager(store)

	newExpiry, err := m.RenewForexLicense(context.Background(), "FX-MO-ABCDEF12-ABC123-XY9Z")
	if err != nil {
		t.Fatalf("RenewForexLicense failed: %v", err)
	}

	want := current.Add(30 * 24 * time.Hour)
	if !newExpiry.Equal(want) {
		t.Errorf("newExpiry = %v, want %v (early renewal keeps remaining days)", newExpiry, want)
	}
}

// TestRenewForexLicenseLapsed a key expired 5 days ago renews to now + 30
// days and comes back active
func TestRenewForexLicenseLapsed(t *testing.T) {
	store := newMemStore()
	lapsed := time.Now().Add(-5 * 24 * time.Hour)
	store.licenses["FX-MO-ABCDEF12-ABC123-XY9Z"] = &database.ForexLicense{
		LicenseKey: "FX-MO-ABCDEF12-ABC123-XY9Z",
		PlanType:   license.ForexPlanMonthly,
		Status:     database.StatusExpired,
		ExpiresAt:  &lapsed,
	}
	m := testManager(store)

	before := time.Now()
	newExpiry, err := m.RenewForexLicense(context.Background(), "FX-MO-ABCDEF12-ABC123-XY9Z")
	if err != nil {
		t.Fatalf("RenewForexLicense failed: %v", err)
	}

	days := newExpiry.Sub(before).Hours() / 24
	if days < 29.9 || days > 30.1 {
		t.Errorf("lapsed renewal %.1f days out, want ~30 from now", days)
	}

	lic := store.licenses["FX-MO-ABCDEF12-ABC123-XY9Z"]
	if lic.Status != database.StatusActive {
		t.Errorf("renewed license status = %s, want active", lic.Status)
	}
}

func TestRenewForexLicenseLifetimeRejected(t *testing.T) {
	store := newMemStore()
	store.licenses["FX-LT-ABCDEF12-ABC123-XY9Z"] = &database.ForexLicense{
		LicenseKey: "FX-LT-ABCDEF12-ABC123-XY9Z",
		PlanType:   license.ForexPlanLifetime,
		Status:     database.StatusActive,
	}
	m := testManager(store)

	_, err := m.RenewForexLicense(context.Background(), "FX-LT-ABCDEF12-ABC123-XY9Z")
	if !errors.Is(err, ErrNotMonthly) {
		t.Errorf("err = %v, want ErrNotMonthly", err)
	}
}

func TestValidateForexKeyFormatGate(t *testing.T) {
	store := newMemStore()
	m := testManager(store)

	_, err := m.ValidateForexKey(context.Background(), "garbage", "m1", "1.2.3.4", "ua")
	if err == nil {
		t.Fatal("malformed key should fail validation")
	}
	if len(store.usage) != 1 || store.usage[0].Success {
		t.Error("format failure should log an unsuccessful attempt")
	}
}

func TestValidateForexKeyUnknown(t *testing.T) {
	store := newMemStore()
	m := testManager(store)

	_, err := m.ValidateForexKey(context.Background(), "FX-MO-ABCDEF12-ABC123-XY9Z", "m1", "1.2.3.4", "ua")
	if !errors.Is(err, ErrLicenseNotFound) {
		t.Errorf("err = %v, want ErrLicenseNotFound", err)
	}
}

func TestIssueCode(t *testing.T) {
	store := newMemStore()
	m := testManager(store)

	lc, err := m.IssueCode(context.Background(), plans.TierDesktop, plans.CycleLifetime, nil)
	if err != nil {
		t.Fatalf("IssueCode failed: %v", err)
	}
	if !strings.HasPrefix(lc.Code, "DSK-") {
		t.Errorf("desktop code %q missing DSK prefix", lc.Code)
	}
	if !lc.IsActive {
		t.Error("issued code should start active")
	}
	if result := license.Validate(lc.Code); !result.Valid {
		t.Errorf("issued code %q does not validate: %s", lc.Code, result.Error)
	}
}

func TestIssueCodeUnknownTier(t *testing.T) {
	m := testManager(newMemStore())

	if _, err := m.IssueCode(context.Background(), plans.PlanTier("platinum"), plans.CycleMonthly, nil); err == nil {
		t.Error("expected error for unknown tier")
	}
}

func issueDesktopCode(t *testing.T, m *Manager, store *memStore) string {
	t.Helper()
	lc, err := m.IssueCode(context.Background(), plans.TierDesktop, plans.CycleLifetime, nil)
	if err != nil {
		t.Fatalf("IssueCode failed: %v", err)
	}
	return lc.Code
}

// TestActivateDesktopMachineBinding machine A activates and re-activates;
// machine B is refused
func TestActivateDesktopMachineBinding(t *testing.T) {
	store := newMemStore()
	m := testManager(store)
	code := issueDesktopCode(t, m, store)

	// First activation binds machine A
	result, err := m.ActivateDesktop(context.Background(), code, "machine-a", "0xwallet", "1.2.3.4", "ua")
	if err != nil {
		t.Fatalf("ActivateDesktop failed: %v", err)
	}
	if !result.Allowed {
		t.Fatalf("first activation refused: %s", result.Reason)
	}
	if result.PlanTier != plans.TierDesktop {
		t.Errorf("PlanTier = %s, want desktop", result.PlanTier)
	}

	// Re-activation from the same machine is idempotent
	result, err = m.ActivateDesktop(context.Background(), code, "machine-a", "0xwallet", "1.2.3.4", "ua")
	if err != nil {
		t.Fatalf("ActivateDesktop failed: %v", err)
	}
	if !result.Allowed {
		t.Errorf("re-activation from bound machine refused: %s", result.Reason)
	}

	// A different machine is refused
	result, err = m.ActivateDesktop(context.Background(), code, "machine-b", "0xother", "5.6.7.8", "ua")
	if err != nil {
		t.Fatalf("ActivateDesktop failed: %v", err)
	}
	if result.Allowed {
		t.Fatal("second machine activated a bound code")
	}
	if !strings.Contains(result.Reason, "different machine") {
		t.Errorf("reason = %q", result.Reason)
	}

	// The binding still points at machine A
	if store.codes[code].MachineID != "machine-a" {
		t.Errorf("MachineID = %q, want machine-a", store.codes[code].MachineID)
	}
}

func TestActivateDesktopNonDesktopTier(t *testing.T) {
	store := newMemStore()
	m := testManager(store)

	lc, err := m.IssueCode(context.Background(), plans.TierPro, plans.CycleYearly, nil)
	if err != nil {
		t.Fatalf("IssueCode failed: %v", err)
	}

	result, err := m.ActivateDesktop(context.Background(), lc.Code, "machine-a", "", "1.2.3.4", "ua")
	if err != nil {
		t.Fatalf("ActivateDesktop failed: %v", err)
	}
	if result.Allowed {
		t.Fatal("pro code activated as desktop")
	}
	if !strings.Contains(result.Reason, "not a desktop license") {
		t.Errorf("reason = %q", result.Reason)
	}
}

func TestActivateDesktopRevokedCode(t *testing.T) {
	store := newMemStore()
	m := testManager(store)
	code := issueDesktopCode(t, m, store)
	store.codes[code].IsActive = false

	result, err := m.ActivateDesktop(context.Background(), code, "machine-a", "", "1.2.3.4", "ua")
	if err != nil {
		t.Fatalf("ActivateDesktop failed: %v", err)
	}
	if result.Allowed {
		t.Fatal("revoked code activated")
	}
	if !strings.Contains(result.Reason, "revoked") {
		t.Errorf("reason = %q", result.Reason)
	}
}

func TestActivateDesktopExpiredCode(t *testing.T) {
	store := newMemStore()
	m := testManager(store)
	expired := time.Now().Add(-time.Hour)

	lc, err := m.IssueCode(context.Background(), plans.TierDesktop, plans.CycleLifetime, &expired)
	if err != nil {
		t.Fatalf("IssueCode failed: %v", err)
	}

	result, err := m.ActivateDesktop(context.Background(), lc.Code, "machine-a", "", "1.2.3.4", "ua")
	if err != nil {
		t.Fatalf("ActivateDesktop failed: %v", err)
	}
	if result.Allowed {
		t.Fatal("expired code activated")
	}
}

func TestActivateDesktopBadChecksum(t *testing.T) {
	m := testManager(newMemStore())

	result, err := m.ActivateDesktop(context.Background(), "DSK-AAAA-BBBB-CCCC-DDDD-000", "machine-a", "", "1.2.3.4", "ua")
	if err != nil {
		t.Fatalf("ActivateDesktop failed: %v", err)
	}
	if result.Allowed {
		t.Fatal("code with bad checksum activated")
	}
}

// TestCheckDesktopActivationWritesNothing the check path must not bind
func TestCheckDesktopActivationWritesNothing(t *testing.T) {
	store := newMemStore()
	m := testManager(store)
	code := issueDesktopCode(t, m, store)

	result, err := m.CheckDesktopActivation(context.Background(), code, "machine-a")
	if err != nil {
		t.Fatalf("CheckDesktopActivation failed: %v", err)
	}
	if !result.Allowed {
		t.Fatalf("check refused: %s", result.Reason)
	}
	if store.codes[code].MachineID != "" {
		t.Error("check path bound a machine")
	}
	if store.codes[code].ActivatedAt != nil {
		t.Error("check path stamped activation")
	}
}

func TestActivateDesktopStoreFailure(t *testing.T) {
	store := newMemStore()
	m := testManager(store)
	code := issueDesktopCode(t, m, store)
	store.err = errors.New("connection refused")

	_, err := m.ActivateDesktop(context.Background(), code, "machine-a", "", "1.2.3.4", "ua")
	if err == nil {
		t.Fatal("store failure must surface as an error")
	}
}
