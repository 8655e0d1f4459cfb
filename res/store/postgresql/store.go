package postgresql

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"djhub-api/res/store"

	sqlCommenter "github.com/gouyelliot/gorm-sqlcommenter-plugin"
	"github.com/graph-gophers/dataloader"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type storeImpl struct {
	db *gorm.DB

	userStore         *userStore
	bookingStore      *bookingStore
	staffProfileStore *staffProfileStore
	availabilityStore *availabilityStore
	payrollStore      *payrollStore
	transactionStore  *transactionStore
	auditStore        *auditStore
}

func (sImpl *storeImpl) Users() store.UserStore {
	return sImpl.userStore
}

func (sImpl *storeImpl) Bookings() store.BookingStore {
	return sImpl.bookingStore
}

func (sImpl *storeImpl) StaffProfiles() store.StaffProfileStore {
	return sImpl.staffProfileStore
}

func (sImpl *storeImpl) Availability() store.AvailabilityStore {
	return sImpl.availabilityStore
}

func (sImpl *storeImpl) Payrolls() store.PayrollStore {
	return sImpl.payrollStore
}

func (sImpl *storeImpl) Transactions() store.TransactionStore {
	return sImpl.transactionStore
}

func (sImpl *storeImpl) AuditRecords() store.AuditStore {
	return sImpl.auditStore
}

func (sImpl *storeImpl) RunInTx(ctx context.Context, fn func(tx store.Store) error) error {
	return sImpl.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(newStore(tx))
	})
}

// Migrate creates or updates the tables of every model
func (sImpl *storeImpl) Migrate() error {
	err := sImpl.db.AutoMigrate(
		&store.User{},
		&store.StaffProfile{},
		&store.Availability{},
		&store.Booking{},
		&store.PayrollRecord{},
		&store.Transaction{},
		&store.AuditRecord{},
	)
	if err != nil {
		return fmt.Errorf("failed to auto-migrate tables: %w", err)
	}
	return nil
}

func Connect(connectionUrl string) (*storeImpl, error) {
	db, err := gorm.Open(postgres.Open(connectionUrl), &gorm.Config{TranslateError: true, PrepareStmt: false})
	if err != nil {
		return nil, err
	}

	err = db.Use(sqlCommenter.New())
	if err != nil {
		return nil, err
	}

	err = decorateDBOperationsWithAdditionalInfo(db)
	if err != nil {
		return nil, err
	}

	return New(db), nil
}

// New wraps an already opened gorm connection
func New(db *gorm.DB) *storeImpl {
	return newStore(db)
}

func newStore(db *gorm.DB) *storeImpl {
	s := &storeImpl{db: db}

	s.userStore = NewUserStore(s)
	s.bookingStore = NewBookingStore(s)
	s.staffProfileStore = NewStaffProfileStore(s)
	s.availabilityStore = NewAvailabilityStore(s)
	s.payrollStore = NewPayrollStore(s)
	s.transactionStore = NewTransactionStore(s)
	s.auditStore = NewAuditStore(s)

	return s
}

// COMMON UTILITIES

// translateError maps gorm errors onto the store sentinel errors
func translateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%w: %v", store.ErrNotFound, err)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", store.ErrUniqueViolation, err)
	default:
		return err
	}
}

func decorateBatchedQueriesWithError(err error, keys []dataloader.Key) []*dataloader.Result {
	var results []*dataloader.Result

	for i := 0; i < len(keys); i++ {
		results = append(results, &dataloader.Result{Data: nil, Error: err})
	}

	return results
}

func identifyCallee(stackDepth int) string {
	function, _, line, ok := runtime.Caller(stackDepth)
	if !ok {
		return "<missing-runtime-info>"
	}
	return fmt.Sprintf("%s:%d", runtime.FuncForPC(function).Name(), line)
}

func annotateWithInfoHook(db *gorm.DB) {
	info := identifyCallee(4) // Skip the internal gorm calls & the 2 local setup calls
	db.Clauses(sqlCommenter.NewTag("action", info))
}

func decorateDBOperationsWithAdditionalInfo(db *gorm.DB) error {
	return db.Callback().Query().Before("gorm:query").Register("store::annotate_with_info", annotateWithInfoHook)
}
