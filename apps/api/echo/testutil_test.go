package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/kahawa/core"
	"github.com/trezcool/kahawa/core/audit"
	"github.com/trezcool/kahawa/core/certificate"
	"github.com/trezcool/kahawa/core/notification"
	"github.com/trezcool/kahawa/core/queue"
	"github.com/trezcool/kahawa/core/training"
	"github.com/trezcool/kahawa/core/user"
	emailsvc "github.com/trezcool/kahawa/services/email"
	qrsvc "github.com/trezcool/kahawa/services/qr"
	smssvc "github.com/trezcool/kahawa/services/sms"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

// testApp wires a full Server onto in-memory stores.
type testApp struct {
	srv      Server
	opts     *Options
	usrRepo  *fakeUserRepo
	sessRepo *fakeTrainingRepo
	qRepo    *fakeQueueRepo
	certRepo *fakeCertRepo
	audit    *fakeAuditRepo
	notif    *fakeNotifRepo
}

func setup(t *testing.T) *testApp {
	t.Helper()

	conf := &core.Config{
		AppName:              "Kahawa",
		TestMode:             true,
		SecretKey:            "secret",
		FrontendBaseURL:      "http://localhost:3000",
		PasswordResetTimeout: time.Hour,
		SessionIdleTimeout:   30 * time.Minute,
		Server: core.ServerConfig{
			JWTExpirationDelta:        10 * time.Minute,
			JWTRefreshExpirationDelta: 4 * time.Hour,
		},
	}

	validate := validator.New()
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	core.InitValidators(validate, translator)

	logger := nopLogger{}
	usrRepo := newFakeUserRepo()
	sessRepo := newFakeTrainingRepo()
	qRepo := newFakeQueueRepo()
	certRepo := newFakeCertRepo()
	auditRepo := newFakeAuditRepo()
	notifRepo := newFakeNotifRepo()

	sessions := user.NewSessionManager(usrRepo, usrRepo, conf, logger)

	opts := &Options{
		DisableReqLogs: true,
		Conf:           conf,
		Logger:         logger,
		Validate:       validate,
		Translator:     translator,
		UserSvc:        user.NewService(usrRepo, usrRepo, sessions, conf),
		Sessions:       sessions,
		TrainingSvc:    training.NewService(sessRepo),
		QueueSvc:       queue.NewService(qRepo),
		CertSvc:        certificate.NewService(certRepo, validate),
		QRSvc:          qrsvc.NewService(conf),
		AuditSvc:       audit.NewService(auditRepo, logger),
		NotifSvc: notification.NewService(
			notifRepo,
			emailsvc.NewConsoleServiceMock(conf),
			smssvc.NewConsoleServiceMock(conf),
			conf, logger,
		),
	}
	return &testApp{
		srv:      NewServer(opts),
		opts:     opts,
		usrRepo:  usrRepo,
		sessRepo: sessRepo,
		qRepo:    qRepo,
		certRepo: certRepo,
		audit:    auditRepo,
		notif:    notifRepo,
	}
}

func (app *testApp) createUser(t *testing.T, first, last, email, pwd, role string, active bool) user.User {
	t.Helper()
	now := time.Now().UTC()
	status := user.StatusInactive
	if active {
		status = user.StatusActive
	}
	usr := user.User{
		Email:     email,
		FirstName: first,
		LastName:  last,
		Role:      role,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("createUser() failed: %v", err)
		}
	}
	usr, err := app.usrRepo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

// getToken issues a signed JWT and opens the matching login session.
func (app *testApp) getToken(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := GenerateToken(GetUserClaims(usr))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	app.opts.Sessions.Create(context.Background(), usr, token, "", "test")
	return token
}

func (app *testApp) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	app.srv.ServeHTTP(rec, req)
	return rec
}

func newAuthRequest(method, path, token string, data ...[]byte) *http.Request {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	return req
}

func newRequest(method, path string, data ...[]byte) *http.Request {
	return newAuthRequest(method, path, "", data...)
}

func marshallObj(t *testing.T, obj interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshallObj() failed: %v", err)
	}
	return data
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode() failed: %v; body %s", err, rec.Body.String())
	}
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	t.Helper()
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	return assert.ObjectsAreEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

// fakeUserRepo is a map-backed store covering the user, password-reset and
// session repositories.
type fakeUserRepo struct {
	mu       sync.Mutex
	users    map[int]*user.User
	tokens   map[string]*user.ResetToken
	sessions map[string]*user.SessionRecord
	nextID   int
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		users:    make(map[int]*user.User),
		tokens:   make(map[string]*user.ResetToken),
		sessions: make(map[string]*user.SessionRecord),
	}
}

func (r *fakeUserRepo) id() int { r.nextID++; return r.nextID }

func (r *fakeUserRepo) CheckEmailUniqueness(_ context.Context, email string, excluded ...user.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
outer:
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			for _, ex := range excluded {
				if ex.ID == u.ID {
					continue outer
				}
			}
			return user.ErrEmailExists
		}
	}
	return nil
}

func (r *fakeUserRepo) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, usr.Email) {
			return user.User{}, user.ErrEmailExists
		}
	}
	usr.ID = r.id()
	r.users[usr.ID] = &usr
	return usr, nil
}

func (r *fakeUserRepo) GetUserByID(_ context.Context, id int) (user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return *u, nil
}

func (r *fakeUserRepo) GetUserByEmail(_ context.Context, email string) (user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			return *u, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (r *fakeUserRepo) QueryAllUsers(_ context.Context) ([]user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]user.User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeUserRepo) FilterUsers(_ context.Context, filter user.QueryFilter) ([]user.User, error) {
	all, _ := r.QueryAllUsers(context.Background())
	var out []user.User
	for _, u := range all {
		if filter.Role != "" && u.Role != filter.Role {
			continue
		}
		if filter.Status != "" && u.Status != filter.Status {
			continue
		}
		if filter.Search != "" {
			s := strings.ToLower(filter.Search)
			if !strings.Contains(strings.ToLower(u.FirstName), s) &&
				!strings.Contains(strings.ToLower(u.LastName), s) &&
				!strings.Contains(strings.ToLower(u.Email), s) {
				continue
			}
		}
		out = append(out, u)
	}
	return out, nil
}

func (r *fakeUserRepo) UpdateUser(_ context.Context, usr user.User) (user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.users[usr.ID]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	*stored = usr
	return usr, nil
}

func (r *fakeUserRepo) SetLastLogin(_ context.Context, usr user.User) (user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.users[usr.ID]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	stored.LastLoginAt = time.Now().UTC()
	return *stored, nil
}

func (r *fakeUserRepo) SetPassword(_ context.Context, userID int, hash []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return user.ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (r *fakeUserRepo) SetTwoFactorSecret(_ context.Context, userID int, secret string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return user.ErrNotFound
	}
	u.TwoFactorSecret = secret
	return nil
}

func (r *fakeUserRepo) SetTwoFactorEnabled(_ context.Context, userID int, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return user.ErrNotFound
	}
	u.TwoFactorEnabled = enabled
	return nil
}

func (r *fakeUserRepo) ReplaceResetToken(_ context.Context, userID int, token string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for t, rt := range r.tokens {
		if rt.UserID == userID {
			delete(r.tokens, t)
		}
	}
	r.tokens[token] = &user.ResetToken{ID: r.id(), UserID: userID, Token: token, ExpiresAt: expiresAt}
	return nil
}

func (r *fakeUserRepo) GetResetToken(_ context.Context, token string) (user.ResetToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rt, ok := r.tokens[token]
	if !ok || !rt.UsedAt.IsZero() || rt.ExpiresAt.Before(time.Now().UTC()) {
		return user.ResetToken{}, user.ErrInvalidResetToken
	}
	return *rt, nil
}

func (r *fakeUserRepo) MarkResetTokenUsed(_ context.Context, tokenID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rt := range r.tokens {
		if rt.ID == tokenID {
			rt.UsedAt = time.Now().UTC()
			return nil
		}
	}
	return user.ErrInvalidResetToken
}

// lastResetToken returns the most recently issued reset token for the user.
func (r *fakeUserRepo) lastResetToken(userID int) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	for t, rt := range r.tokens {
		if rt.UserID == userID && rt.UsedAt.IsZero() {
			return t
		}
	}
	return ""
}

func (r *fakeUserRepo) CreateSession(_ context.Context, rec user.SessionRecord) (user.SessionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec.ID = r.id()
	r.sessions[rec.TokenHash] = &rec
	return rec, nil
}

func (r *fakeUserRepo) GetActiveSession(_ context.Context, tokenHash string) (user.SessionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.sessions[tokenHash]
	if !ok || !rec.IsActive {
		return user.SessionRecord{}, user.ErrSessionNotFound
	}
	return *rec, nil
}

func (r *fakeUserRepo) TouchSession(_ context.Context, tokenHash string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.sessions[tokenHash]; ok {
		rec.LastActivity = at
	}
	return nil
}

func (r *fakeUserRepo) DeactivateSession(_ context.Context, tokenHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.sessions[tokenHash]; ok {
		rec.IsActive = false
	}
	return nil
}

func (r *fakeUserRepo) DeactivateUserSessions(_ context.Context, userID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.sessions {
		if rec.UserID == userID {
			rec.IsActive = false
		}
	}
	return nil
}

type fakeTrainingRepo struct {
	mu          sync.Mutex
	sessions    map[int]*training.Session
	enrollments map[int]*training.Enrollment
	nextID      int
}

func newFakeTrainingRepo() *fakeTrainingRepo {
	return &fakeTrainingRepo{
		sessions:    make(map[int]*training.Session),
		enrollments: make(map[int]*training.Enrollment),
	}
}

func (r *fakeTrainingRepo) id() int { r.nextID++; return r.nextID }

func (r *fakeTrainingRepo) CreateSession(_ context.Context, sess training.Session) (training.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess.ID = r.id()
	r.sessions[sess.ID] = &sess
	return sess, nil
}

func (r *fakeTrainingRepo) GetSessionByID(_ context.Context, id int) (training.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[id]
	if !ok {
		return training.Session{}, training.ErrNotFound
	}
	return *sess, nil
}

func (r *fakeTrainingRepo) FilterSessions(_ context.Context, filter training.QueryFilter) ([]training.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []training.Session
	for _, sess := range r.sessions {
		if filter.Status != "" && sess.Status != filter.Status {
			continue
		}
		if filter.Upcoming && sess.SessionDate.Before(time.Now()) {
			continue
		}
		out = append(out, *sess)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeTrainingRepo) UpdateSession(_ context.Context, sess training.Session) (training.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.sessions[sess.ID]
	if !ok {
		return training.Session{}, training.ErrNotFound
	}
	*stored = sess
	return sess, nil
}

func (r *fakeTrainingRepo) CreateEnrollment(_ context.Context, sessionID, traineeID int) (training.Enrollment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[sessionID]
	if !ok {
		return training.Enrollment{}, training.ErrNotFound
	}
	var count int
	for _, enr := range r.enrollments {
		if enr.SessionID != sessionID {
			continue
		}
		if enr.TraineeID == traineeID && enr.Status != training.EnrollmentCancelled {
			return training.Enrollment{}, training.ErrAlreadyEnrolled
		}
		if enr.Status != training.EnrollmentCancelled {
			count++
		}
	}
	if count >= sess.Capacity {
		return training.Enrollment{}, training.ErrSessionFull
	}
	enr := training.Enrollment{
		ID:         r.id(),
		SessionID:  sessionID,
		TraineeID:  traineeID,
		Status:     training.EnrollmentRegistered,
		EnrolledAt: time.Now(),
	}
	r.enrollments[enr.ID] = &enr
	return enr, nil
}

func (r *fakeTrainingRepo) GetEnrollment(_ context.Context, sessionID, traineeID int) (training.Enrollment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, enr := range r.enrollments {
		if enr.SessionID == sessionID && enr.TraineeID == traineeID && enr.Status != training.EnrollmentCancelled {
			return *enr, nil
		}
	}
	return training.Enrollment{}, training.ErrEnrollmentNotFound
}

func (r *fakeTrainingRepo) ListSessionEnrollments(_ context.Context, sessionID int) ([]training.Enrollment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []training.Enrollment
	for _, enr := range r.enrollments {
		if enr.SessionID == sessionID {
			out = append(out, *enr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeTrainingRepo) ListTraineeEnrollments(_ context.Context, traineeID int) ([]training.Enrollment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []training.Enrollment
	for _, enr := range r.enrollments {
		if enr.TraineeID == traineeID {
			out = append(out, *enr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeTrainingRepo) SetEnrollmentStatus(_ context.Context, enrollmentID int, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	enr, ok := r.enrollments[enrollmentID]
	if !ok {
		return training.ErrEnrollmentNotFound
	}
	enr.Status = status
	return nil
}

type fakeQueueRepo struct {
	mu      sync.Mutex
	entries map[int]*queue.Entry
	nextID  int
}

func newFakeQueueRepo() *fakeQueueRepo {
	return &fakeQueueRepo{entries: make(map[int]*queue.Entry)}
}

func (r *fakeQueueRepo) JoinQueue(_ context.Context, sessionID, traineeID int) (queue.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var maxPos int
	for _, e := range r.entries {
		if e.SessionID != sessionID {
			continue
		}
		if e.TraineeID == traineeID && e.Status == queue.StatusWaiting {
			return queue.Entry{}, queue.ErrAlreadyQueued
		}
		if e.Position > maxPos {
			maxPos = e.Position
		}
	}
	r.nextID++
	e := &queue.Entry{
		ID:        r.nextID,
		SessionID: sessionID,
		TraineeID: traineeID,
		Position:  maxPos + 1,
		Status:    queue.StatusWaiting,
		JoinedAt:  time.Now(),
	}
	r.entries[e.ID] = e
	return *e, nil
}

func (r *fakeQueueRepo) GetEntryByID(_ context.Context, id int) (queue.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return queue.Entry{}, queue.ErrNotFound
	}
	return *e, nil
}

func (r *fakeQueueRepo) ListWaiting(_ context.Context, sessionID int) ([]queue.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listWaiting(sessionID), nil
}

func (r *fakeQueueRepo) listWaiting(sessionID int) []queue.Entry {
	var out []queue.Entry
	for _, e := range r.entries {
		if e.SessionID == sessionID && e.Status == queue.StatusWaiting {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

func (r *fakeQueueRepo) ListTraineeWaiting(_ context.Context, traineeID int) ([]queue.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []queue.Entry
	for _, e := range r.entries {
		if e.TraineeID == traineeID && e.Status == queue.StatusWaiting {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeQueueRepo) SetEntryCancelled(_ context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok || e.Status != queue.StatusWaiting {
		return queue.ErrNotFound
	}
	e.Status = queue.StatusCancelled
	return nil
}

func (r *fakeQueueRepo) NextWaiting(_ context.Context, sessionID int) (queue.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	waiting := r.listWaiting(sessionID)
	if len(waiting) == 0 {
		return queue.Entry{}, queue.ErrNotFound
	}
	return waiting[0], nil
}

func (r *fakeQueueRepo) SetEntryProcessing(_ context.Context, id int) (queue.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return queue.Entry{}, queue.ErrNotFound
	}
	e.Status = queue.StatusProcessing
	e.ProcessedAt = time.Now()
	return *e, nil
}

type fakeAuditRepo struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func newFakeAuditRepo() *fakeAuditRepo { return &fakeAuditRepo{} }

func (r *fakeAuditRepo) CreateEntry(_ context.Context, e audit.Entry) (audit.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.ID = len(r.entries) + 1
	r.entries = append(r.entries, e)
	return e, nil
}

func (r *fakeAuditRepo) FilterEntries(_ context.Context, filter audit.QueryFilter) ([]audit.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]audit.Entry, len(r.entries))
	copy(out, r.entries)
	return out, nil
}

// lastAction returns the action of the most recent audit entry.
func (r *fakeAuditRepo) lastAction() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) == 0 {
		return ""
	}
	return r.entries[len(r.entries)-1].Action
}

type fakeNotifRepo struct {
	mu    sync.Mutex
	sent  []notification.Notification
	nextI int
}

func newFakeNotifRepo() *fakeNotifRepo { return &fakeNotifRepo{} }

func (r *fakeNotifRepo) CreateNotification(_ context.Context, n notification.Notification) (notification.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextI++
	n.ID = r.nextI
	r.sent = append(r.sent, n)
	return n, nil
}

func (r *fakeNotifRepo) FilterNotifications(_ context.Context, filter notification.QueryFilter) ([]notification.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notification.Notification, len(r.sent))
	copy(out, r.sent)
	return out, nil
}

type fakeCertRepo struct {
	mu          sync.Mutex
	certs       map[int]*certificate.Certificate
	collections map[int]*certificate.Collection
	nextID      int
}

func newFakeCertRepo() *fakeCertRepo {
	return &fakeCertRepo{
		certs:       make(map[int]*certificate.Certificate),
		collections: make(map[int]*certificate.Collection),
	}
}

func (r *fakeCertRepo) id() int { r.nextID++; return r.nextID }

func (r *fakeCertRepo) CreateCertificate(_ context.Context, cert certificate.Certificate) (certificate.Certificate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.certs {
		if c.Number == cert.Number {
			return certificate.Certificate{}, certificate.ErrNumberConflict
		}
		if c.TraineeID == cert.TraineeID && c.SessionID == cert.SessionID && c.Status != certificate.StatusRevoked {
			return certificate.Certificate{}, certificate.ErrAlreadyIssued
		}
	}
	cert.ID = r.id()
	r.certs[cert.ID] = &cert
	return cert, nil
}

func (r *fakeCertRepo) GetCertificateByID(_ context.Context, id int) (certificate.Certificate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.certs[id]
	if !ok {
		return certificate.Certificate{}, certificate.ErrNotFound
	}
	return *c, nil
}

func (r *fakeCertRepo) GetCertificateByNumber(_ context.Context, number string) (certificate.Certificate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.certs {
		if c.Number == number {
			return *c, nil
		}
	}
	return certificate.Certificate{}, certificate.ErrNotFound
}

func (r *fakeCertRepo) ListTraineeCertificates(_ context.Context, traineeID int) ([]certificate.Certificate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []certificate.Certificate
	for _, c := range r.certs {
		if c.TraineeID == traineeID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeCertRepo) SetCertificateRevoked(_ context.Context, id int, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.certs[id]
	if !ok {
		return certificate.ErrNotFound
	}
	c.Status = certificate.StatusRevoked
	c.RevokedAt = &at
	return nil
}

func (r *fakeCertRepo) CreateCollection(_ context.Context, col certificate.Collection) (certificate.Collection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	col.ID = r.id()
	if cert, ok := r.certs[col.CertificateID]; ok {
		col.CertificateNumber = cert.Number
		col.TraineeID = cert.TraineeID
	}
	r.collections[col.ID] = &col
	return col, nil
}

func (r *fakeCertRepo) GetCollectionByID(_ context.Context, id int) (certificate.Collection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	col, ok := r.collections[id]
	if !ok {
		return certificate.Collection{}, certificate.ErrCollectionNotFound
	}
	return *col, nil
}

func (r *fakeCertRepo) GetCollectionByCertificate(_ context.Context, certID int) (certificate.Collection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, col := range r.collections {
		if col.CertificateID == certID {
			return *col, nil
		}
	}
	return certificate.Collection{}, certificate.ErrCollectionNotFound
}

func (r *fakeCertRepo) ListPendingCollections(_ context.Context) ([]certificate.Collection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []certificate.Collection
	for _, col := range r.collections {
		if col.Status == certificate.CollectionPending {
			out = append(out, *col)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeCertRepo) ListTraineeReadyCollections(_ context.Context, traineeID int) ([]certificate.Collection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []certificate.Collection
	for _, col := range r.collections {
		if col.TraineeID == traineeID && col.Status == certificate.CollectionReady {
			out = append(out, *col)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeCertRepo) UpdateCollection(_ context.Context, col certificate.Collection) (certificate.Collection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.collections[col.ID]
	if !ok {
		return certificate.Collection{}, certificate.ErrCollectionNotFound
	}
	if col.ReferenceCode != "" {
		for id, other := range r.collections {
			if id != col.ID && other.ReferenceCode == col.ReferenceCode {
				return certificate.Collection{}, certificate.ErrNumberConflict
			}
		}
	}
	*stored = col
	return col, nil
}

// recorded returns a snapshot of the notifications written so far.
func (r *fakeNotifRepo) recorded() []notification.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notification.Notification, len(r.sent))
	copy(out, r.sent)
	return out
}

// actions returns the actions of all audit entries, oldest first.
func (r *fakeAuditRepo) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}
