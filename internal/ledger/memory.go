package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/seatdesk/seatdesk/internal/db/models"
)

// MemoryStore is an in-process Store. Transactions are serialized by a single mutex and
// rolled back by restoring a snapshot when fn fails. It enforces the same constraints as
// the Postgres schema: available stays within [0, total] and a (user, license) pair has
// at most one active loan.
type MemoryStore struct {
	mu       sync.Mutex
	licenses map[string]*models.License
	loans    map[string]*models.Loan
	users    map[string]*models.User
}

// NewMemoryStore returns an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		licenses: make(map[string]*models.License),
		loans:    make(map[string]*models.Loan),
		users:    make(map[string]*models.User),
	}
}

// AddUser registers a user so loan listings can show its name and email
func (s *MemoryStore) AddUser(u *models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	s.users[u.ID] = &cp
}

// WithTx runs fn with exclusive access to the store
func (s *MemoryStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	licenses, loans := s.snapshot()
	if err := fn(memTx{s}); err != nil {
		s.licenses, s.loans = licenses, loans
		return err
	}
	return nil
}

func (s *MemoryStore) snapshot() (map[string]*models.License, map[string]*models.Loan) {
	licenses := make(map[string]*models.License, len(s.licenses))
	for id, l := range s.licenses {
		cp := *l
		licenses[id] = &cp
	}
	loans := make(map[string]*models.Loan, len(s.loans))
	for id, l := range s.loans {
		cp := *l
		loans[id] = &cp
	}
	return licenses, loans
}

func (s *MemoryStore) GetLicense(ctx context.Context, id string) (*models.License, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.licenses[id]
	if !ok {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}

func (s *MemoryStore) ListLicenses(ctx context.Context, orgID string) ([]*models.License, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.License, 0, len(s.licenses))
	for _, l := range s.licenses {
		if orgID != "" && l.OrganizationID != orgID {
			continue
		}
		cp := *l
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) ListLoans(ctx context.Context, filter LoanFilter) ([]*models.LoanDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.LoanDetail, 0)
	for _, loan := range s.loans {
		license := s.licenses[loan.LicenseID]
		if license == nil {
			continue
		}
		if filter.UserID != "" && loan.UserID != filter.UserID {
			continue
		}
		if filter.LicenseID != "" && loan.LicenseID != filter.LicenseID {
			continue
		}
		if filter.OrganizationID != "" && license.OrganizationID != filter.OrganizationID {
			continue
		}
		switch filter.Status {
		case "":
		case StatusOverdue:
			if !loan.IsActive() || !loan.DueDate.Before(filter.Now) {
				continue
			}
		default:
			if loan.Status != filter.Status {
				continue
			}
		}

		d := &models.LoanDetail{
			Loan:           *loan,
			LicenseName:    license.Name,
			OrganizationID: license.OrganizationID,
		}
		if u := s.users[loan.UserID]; u != nil {
			d.UserName, d.UserEmail = u.Name, u.Email
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LoanDate.Equal(out[j].LoanDate) {
			return out[i].LoanDate.After(out[j].LoanDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// memTx operates on the store while WithTx holds its mutex
type memTx struct{ s *MemoryStore }

func (t memTx) LockLicense(ctx context.Context, id string) (*models.License, error) {
	l, ok := t.s.licenses[id]
	if !ok {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}

func (t memTx) CreateLicense(ctx context.Context, license *models.License) error {
	if _, ok := t.s.licenses[license.ID]; ok {
		return ErrDuplicateLicense
	}
	cp := *license
	t.s.licenses[license.ID] = &cp
	return nil
}

func (t memTx) SaveLicense(ctx context.Context, license *models.License) error {
	if license.Available < 0 || license.Available > license.Total {
		return ErrSeatCountRange
	}
	if _, ok := t.s.licenses[license.ID]; !ok {
		return ErrLicenseNotFound
	}
	cp := *license
	t.s.licenses[license.ID] = &cp
	return nil
}

func (t memTx) DeleteLicense(ctx context.Context, id string) error {
	delete(t.s.licenses, id)
	for loanID, loan := range t.s.loans {
		if loan.LicenseID == id {
			delete(t.s.loans, loanID)
		}
	}
	return nil
}

func (t memTx) TakeSeat(ctx context.Context, licenseID string) (bool, error) {
	l, ok := t.s.licenses[licenseID]
	if !ok || l.Available <= 0 {
		return false, nil
	}
	l.Available--
	return true, nil
}

func (t memTx) ReleaseSeat(ctx context.Context, licenseID string) (bool, error) {
	l, ok := t.s.licenses[licenseID]
	if !ok || l.Available >= l.Total {
		return false, nil
	}
	l.Available++
	return true, nil
}

func (t memTx) CountActiveLoans(ctx context.Context, licenseID string) (int, error) {
	n := 0
	for _, loan := range t.s.loans {
		if loan.LicenseID == licenseID && loan.IsActive() {
			n++
		}
	}
	return n, nil
}

func (t memTx) HasActiveLoan(ctx context.Context, licenseID, userID string) (bool, error) {
	for _, loan := range t.s.loans {
		if loan.LicenseID == licenseID && loan.UserID == userID && loan.IsActive() {
			return true, nil
		}
	}
	return false, nil
}

func (t memTx) CreateLoan(ctx context.Context, loan *models.Loan) error {
	if _, ok := t.s.licenses[loan.LicenseID]; !ok {
		return ErrLicenseNotFound
	}
	if loan.IsActive() {
		held, _ := t.HasActiveLoan(ctx, loan.LicenseID, loan.UserID)
		if held {
			return ErrAlreadyCheckedOut
		}
	}
	cp := *loan
	cp.LicenseName = ""
	t.s.loans[loan.ID] = &cp
	return nil
}

func (t memTx) FindLoan(ctx context.Context, lookup LoanLookup) (*models.Loan, error) {
	var match *models.Loan
	for _, loan := range t.s.loans {
		if lookup.LoanID != "" && loan.ID != lookup.LoanID {
			continue
		}
		if lookup.LicenseID != "" && loan.LicenseID != lookup.LicenseID {
			continue
		}
		if lookup.UserID != "" && loan.UserID != lookup.UserID {
			continue
		}
		if lookup.ActiveOnly && !loan.IsActive() {
			continue
		}
		if match == nil || loan.LoanDate.After(match.LoanDate) {
			match = loan
		}
	}
	if match == nil {
		return nil, nil
	}
	cp := *match
	return &cp, nil
}

func (t memTx) MarkReturned(ctx context.Context, loanID string, at time.Time, returnedBy *string) (bool, error) {
	loan, ok := t.s.loans[loanID]
	if !ok || !loan.IsActive() {
		return false, nil
	}
	loan.Status = models.LoanStatusReturned
	loan.ReturnedAt = &at
	loan.ReturnedBy = returnedBy
	loan.UpdatedAt = at
	return true, nil
}

func (t memTx) DeleteLoan(ctx context.Context, loanID string) (bool, error) {
	loan, ok := t.s.loans[loanID]
	if !ok || loan.IsActive() {
		return false, nil
	}
	delete(t.s.loans, loanID)
	return true, nil
}
