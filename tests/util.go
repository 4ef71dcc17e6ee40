package testutil

import (
	"context"
	"io"
	"log"
	"net/mail"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/feeledger/core"
	"github.com/trezcool/feeledger/core/fee"
	"github.com/trezcool/feeledger/core/gateway"
	"github.com/trezcool/feeledger/core/payment"
	"github.com/trezcool/feeledger/core/report"
	"github.com/trezcool/feeledger/core/tenant"
	"github.com/trezcool/feeledger/core/user"
	cachesvc "github.com/trezcool/feeledger/services/cache"
	emailsvc "github.com/trezcool/feeledger/services/email"
	eventsvc "github.com/trezcool/feeledger/services/events"
	logsvc "github.com/trezcool/feeledger/services/logger"
	inmemdb "github.com/trezcool/feeledger/storage/database/inmem"
)

const (
	AppURL   = "http://localhost:8000"
	Password = "S3cr3t-Pwd!"
)

func NewConfig() *core.Config {
	conf := &core.Config{
		Debug:           true,
		TestMode:        true,
		Env:             "TEST",
		AppName:         "Fee Ledger",
		SecretKey:       "test-secret",
		FrontendBaseURL: "http://localhost:3000",
	}
	conf.DefaultFromEmail = mail.Address{Name: "Fee Ledger", Address: "noreply@example.com"}
	conf.Server.JWTExpirationDelta = time.Hour
	conf.Server.JWTRefreshExpirationDelta = 24 * time.Hour
	conf.Database.Storage = core.StorageMemory
	conf.Gateway.AppURL = AppURL
	conf.Gateway.PlatformFeeRate = decimal.RequireFromString("0.02")
	conf.Redis.TTL = time.Minute
	return conf
}

func NewLogger(conf *core.Config) *logsvc.RollbarLogger {
	l := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)
	l.Enable(false)
	return l
}

func NewValidator() (*validator.Validate, ut.Translator) {
	enLocale := en.New()
	translator, _ := ut.New(enLocale, enLocale).GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.RegisterValidators(validate, translator)
	return validate, translator
}

// Gateway is a scripted payment provider.
type Gateway struct {
	mu          sync.Mutex
	statuses    map[string]gateway.StatusResponse
	statusErr   error
	payErr      error
	PayCalls    int
	StatusCalls int
	LastPayment gateway.PayRequest
}

var _ gateway.Client = (*Gateway)(nil)

func NewGateway() *Gateway {
	return &Gateway{statuses: make(map[string]gateway.StatusResponse)}
}

// SetStatus scripts what CheckStatus reports for a transaction; unknown ones are PENDING.
func (g *Gateway) SetStatus(txnID string, status gateway.Status, instrument ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	st := gateway.StatusResponse{Status: status, GatewayState: string(status)}
	if len(instrument) > 0 {
		st.Instrument = instrument[0]
	}
	g.statuses[txnID] = st
}

func (g *Gateway) FailStatus(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statusErr = err
}

func (g *Gateway) FailPay(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.payErr = err
}

func (g *Gateway) Pay(_ context.Context, req gateway.PayRequest) (gateway.PayResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.PayCalls++
	g.LastPayment = req
	if g.payErr != nil {
		return gateway.PayResponse{}, g.payErr
	}
	return gateway.PayResponse{RedirectURL: "https://pay.example.com/" + req.TransactionID}, nil
}

func (g *Gateway) CheckStatus(_ context.Context, txnID string) (gateway.StatusResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.StatusCalls++
	if g.statusErr != nil {
		return gateway.StatusResponse{}, g.statusErr
	}
	if st, ok := g.statuses[txnID]; ok {
		return st, nil
	}
	return gateway.StatusResponse{Status: gateway.StatusPending, GatewayState: "PENDING"}, nil
}

func (g *Gateway) Calls() (pay, status int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.PayCalls, g.StatusCalls
}

// Env wires every service on an in-memory store.
type Env struct {
	Conf      *core.Config
	Logger    core.Logger
	Validate  *validator.Validate
	DB        *inmemdb.DB
	Mail      *emailsvc.ConsoleServiceMock
	Events    *eventsvc.Memory
	Cache     *cachesvc.MemoryCache
	Gateway   *Gateway

	OrgRepo     tenant.OrganizationRepository
	UserRepo    user.Repository
	FeeRepo     fee.Repository
	PaymentRepo payment.Repository
	TxnRepo     gateway.Repository
	ReportRepo  report.Repository

	Resolver   *tenant.Resolver
	Users      *user.Service
	Fees       *fee.Service
	Recorder   *payment.Recorder
	Reconciler *gateway.Reconciler
	Reports    *report.Service
}

func NewEnv(t *testing.T) *Env {
	t.Helper()

	conf := NewConfig()
	logger := NewLogger(conf)
	core.ParseEmailTemplates(conf, logger)
	validate, _ := NewValidator()

	db := inmemdb.NewDB()
	env := &Env{
		Conf:        conf,
		Logger:      logger,
		Validate:    validate,
		DB:          db,
		Mail:        emailsvc.NewConsoleServiceMock(conf, logger),
		Events:      &eventsvc.Memory{},
		Cache:       cachesvc.NewMemoryCache(conf.Redis.TTL),
		Gateway:     NewGateway(),
		OrgRepo:     inmemdb.NewOrganizationRepository(db),
		UserRepo:    inmemdb.NewUserRepository(db),
		FeeRepo:     inmemdb.NewFeeRepository(db),
		PaymentRepo: inmemdb.NewPaymentRepository(db),
		TxnRepo:     inmemdb.NewGatewayRepository(db),
		ReportRepo:  inmemdb.NewReportRepository(db),
	}
	bus := eventsvc.NewBus(env.Events, cachesvc.NewReportInvalidator(env.Cache, logger))

	env.Users = user.NewService(env.UserRepo)
	env.Resolver = tenant.NewResolver(env.Users)
	env.Fees = fee.NewService(env.FeeRepo, bus, env.Mail, logger)
	env.Recorder = payment.NewRecorder(db, env.PaymentRepo, env.FeeRepo, env.UserRepo, bus, env.Mail, logger)
	env.Reconciler = gateway.NewReconciler(
		gateway.Options{AppURL: conf.Gateway.AppURL, PlatformFeeRate: conf.Gateway.PlatformFeeRate},
		env.TxnRepo, env.FeeRepo, env.PaymentRepo, env.Recorder, env.Gateway, logger,
	)
	env.Reports = report.NewService(env.ReportRepo, env.Cache, logger)
	return env
}

// School is a seeded organization: one admin, one student with a parent, a tuition category and the current year.
type School struct {
	Org      tenant.Organization
	Year     fee.AcademicYear
	Category fee.Category
	Student  fee.Student
	Admin    user.User
	Pupil    user.User // the student's login
	Parent   user.User
}

// With returns a copy of the school whose fees go to another student or category.
func (s School) With(student fee.Student, category fee.Category) School {
	s.Student = student
	s.Category = category
	return s
}

func (env *Env) NewSchool(t *testing.T, name string) School {
	t.Helper()
	ctx := context.Background()
	now := core.NowFunc().UTC()

	var s School
	var err error
	if s.Org, err = env.OrgRepo.CreateOrganization(ctx, tenant.Organization{ID: uuid.New().String(), Name: name, CreatedAt: now}); err != nil {
		t.Fatalf("NewSchool() failed: %v", err)
	}
	s.Year = env.CreateAcademicYear(t, s.Org.ID, "2024-2025",
		time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, time.March, 31, 0, 0, 0, 0, time.UTC))
	s.Category = env.CreateCategory(t, s.Org.ID, "Tuition")
	s.Student = env.CreateStudent(t, s.Org.ID, "Amani", "amani@"+name+".test", "guardian@"+name+".test")

	s.Admin = env.CreateUser(t, s.Org.ID, "Admin", "admin@"+name+".test", tenant.RoleAdmin, "")
	s.Pupil = env.CreateUser(t, s.Org.ID, "Amani", "amani@"+name+".test", tenant.RoleStudent, s.Student.ID)
	s.Parent = env.CreateUser(t, s.Org.ID, "Parent", "parent@"+name+".test", tenant.RoleParent, uuid.New().String(), s.Student.ID)
	return s
}

func (env *Env) CreateUser(t *testing.T, orgID, name, email string, role tenant.Role, roleSpecificID string, studentIDs ...string) user.User {
	t.Helper()
	now := core.NowFunc().UTC()
	usr := user.User{
		ID:             uuid.New().String(),
		OrganizationID: orgID,
		Name:           name,
		Email:          email,
		Role:           role,
		RoleSpecificID: roleSpecificID,
		StudentIDs:     append([]string{}, studentIDs...),
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := usr.SetPassword(Password); err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	usr, err := env.UserRepo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func (env *Env) CreateAcademicYear(t *testing.T, orgID, name string, start, end time.Time) fee.AcademicYear {
	t.Helper()
	ctx := context.Background()
	y, err := env.FeeRepo.CreateAcademicYear(ctx, fee.AcademicYear{
		ID:             uuid.New().String(),
		OrganizationID: orgID,
		Name:           name,
		StartDate:      start,
		EndDate:        end,
		CreatedAt:      core.NowFunc().UTC(),
	})
	if err == nil {
		err = env.FeeRepo.SetCurrentAcademicYear(ctx, orgID, y.ID)
		y.IsCurrent = true
	}
	if err != nil {
		t.Fatalf("CreateAcademicYear() failed: %v", err)
	}
	return y
}

func (env *Env) CreateCategory(t *testing.T, orgID, name string) fee.Category {
	t.Helper()
	c, err := env.FeeRepo.CreateCategory(context.Background(), fee.Category{
		ID:             uuid.New().String(),
		OrganizationID: orgID,
		Name:           name,
		CreatedAt:      core.NowFunc().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateCategory() failed: %v", err)
	}
	return c
}

func (env *Env) CreateStudent(t *testing.T, orgID, name, email, guardianEmail string) fee.Student {
	t.Helper()
	s, err := env.FeeRepo.CreateStudent(context.Background(), fee.Student{
		ID:             uuid.New().String(),
		OrganizationID: orgID,
		Name:           name,
		Email:          null.NewString(email, email != ""),
		GuardianEmail:  null.NewString(guardianEmail, guardianEmail != ""),
		CreatedAt:      core.NowFunc().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateStudent() failed: %v", err)
	}
	return s
}

// CreateFee stores an UNPAID fee directly, bypassing the service.
func (env *Env) CreateFee(t *testing.T, s School, total string, dueDate time.Time) fee.Fee {
	t.Helper()
	amount := decimal.RequireFromString(total)
	now := core.NowFunc().UTC()
	f, err := env.FeeRepo.CreateFee(context.Background(), fee.Fee{
		ID:             uuid.New().String(),
		OrganizationID: s.Org.ID,
		StudentID:      s.Student.ID,
		CategoryID:     s.Category.ID,
		AcademicYearID: s.Year.ID,
		TotalFee:       amount,
		PaidAmount:     decimal.Zero,
		PendingAmount:  amount,
		Status:         fee.StatusUnpaid,
		DueDate:        dueDate.UTC(),
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		t.Fatalf("CreateFee() failed: %v", err)
	}
	return f
}

// Context resolves a user's tenant context the way the API does.
func (env *Env) Context(t *testing.T, usr user.User) tenant.Context {
	t.Helper()
	tc, err := env.Resolver.Resolve(context.Background(), &tenant.Principal{ID: usr.ID})
	if err != nil {
		t.Fatalf("Context() failed: %v", err)
	}
	return tc
}
