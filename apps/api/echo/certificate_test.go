package echoapi

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/trezcool/kahawa/core/certificate"
	"github.com/trezcool/kahawa/core/notification"
	"github.com/trezcool/kahawa/core/user"
)

func (app *testApp) issueCertificate(t *testing.T, issuedBy, traineeID, sessionID int, course string) certificate.Certificate {
	t.Helper()
	cert, err := app.opts.CertSvc.Issue(context.Background(), issuedBy, certificate.IssueCertificate{
		TraineeID:  traineeID,
		SessionID:  sessionID,
		CourseName: course,
	})
	if err != nil {
		t.Fatalf("issueCertificate() failed: %v", err)
	}
	return cert
}

func TestCertificateApi_issue(t *testing.T) {
	app := setup(t)
	trainee := app.createUser(t, "Awa", "Ilunga", "awa@kahawa.cd", "pass123", user.RoleTrainee, true)
	trainer := app.createUser(t, "Didi", "Mbala", "trainer@kahawa.cd", "pass123", user.RoleTrainer, true)
	traineeToken := app.getToken(t, trainee)
	trainerToken := app.getToken(t, trainer)

	body := marshallObj(t, certificate.IssueCertificate{
		TraineeID:  trainee.ID,
		SessionID:  1,
		CourseName: "Barista Basics",
	})

	tests := []httpTest{
		{
			name: "trainee cannot issue", method: http.MethodPost, path: "/v1/certificates",
			body: body, token: traineeToken,
			wantCode: http.StatusForbidden, wantData: []byte(`{"error": "permission denied"}`),
		},
		{
			name: "empty payload", method: http.MethodPost, path: "/v1/certificates",
			body: []byte(`{}`), token: trainerToken,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{
				"trainee_id": "this field is required",
				"session_id": "this field is required",
				"course_name": "this field is required"
			}`),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.do(newAuthRequest(tt.method, tt.path, tt.token, tt.body))
			checkCodeAndData(t, tt, rec)
		})
	}

	var cert certificate.Certificate
	t.Run("ok", func(t *testing.T) {
		rec := app.do(newAuthRequest(http.MethodPost, "/v1/certificates", trainerToken, body))
		if rec.Code != http.StatusCreated {
			t.Fatalf("code = %v; body %s", rec.Code, rec.Body.String())
		}
		decode(t, rec, &cert)
		if cert.Number == "" || cert.Status != certificate.StatusIssued {
			t.Errorf("certificate = %+v; want a numbered issued certificate", cert)
		}
		if got := app.audit.lastAction(); got != "certificate.issue" {
			t.Errorf("audit action = %q; want %q", got, "certificate.issue")
		}

		// the holder gets notified
		var notified bool
		for _, n := range app.notif.recorded() {
			if n.UserID == trainee.ID && n.Channel == notification.ChannelEmail &&
				n.Subject == "Your certificate has been issued" {
				notified = true
			}
		}
		if !notified {
			t.Error("expected an issued-certificate notification for the holder")
		}
	})

	t.Run("duplicate for same session", func(t *testing.T) {
		rec := app.do(newAuthRequest(http.MethodPost, "/v1/certificates", trainerToken, body))
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusConflict,
			wantData: []byte(`{"error": "certificate already issued for this session"}`),
		}, rec)
	})

	t.Run("reissue after revocation", func(t *testing.T) {
		rec := app.do(newAuthRequest(http.MethodPost, "/v1/certificates/"+strconv.Itoa(cert.ID)+"/revoke", trainerToken))
		if rec.Code != http.StatusForbidden {
			t.Fatalf("trainer revoke code = %v; want %v", rec.Code, http.StatusForbidden)
		}

		admin := app.createUser(t, "Ad", "Min", "admin@kahawa.cd", "pass123", user.RoleAdmin, true)
		adminToken := app.getToken(t, admin)
		rec = app.do(newAuthRequest(http.MethodPost, "/v1/certificates/"+strconv.Itoa(cert.ID)+"/revoke", adminToken))
		if rec.Code != http.StatusOK {
			t.Fatalf("revoke code = %v; body %s", rec.Code, rec.Body.String())
		}

		rec = app.do(newAuthRequest(http.MethodPost, "/v1/certificates", trainerToken, body))
		if rec.Code != http.StatusCreated {
			t.Errorf("reissue code = %v; body %s", rec.Code, rec.Body.String())
		}
	})
}

func TestCertificateApi_verify(t *testing.T) {
	app := setup(t)
	trainee := app.createUser(t, "Awa", "Ilunga", "awa@kahawa.cd", "pass123", user.RoleTrainee, true)
	trainer := app.createUser(t, "Didi", "Mbala", "trainer@kahawa.cd", "pass123", user.RoleTrainer, true)
	cert := app.issueCertificate(t, trainer.ID, trainee.ID, 1, "Latte Art")

	t.Run("valid certificate", func(t *testing.T) {
		rec := app.do(newRequest(http.MethodGet, "/v1/certificates/verify?number="+url.QueryEscape(cert.Number)))
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; body %s", rec.Code, rec.Body.String())
		}
		var res struct {
			Valid   bool   `json:"valid"`
			Expired bool   `json:"expired"`
			Number  string `json:"certificate_number"`
		}
		decode(t, rec, &res)
		if !res.Valid || res.Expired || res.Number != cert.Number {
			t.Errorf("result = %+v; want a valid, unexpired match", res)
		}
		if got := app.audit.lastAction(); got != "certificate.verify" {
			t.Errorf("audit action = %q; want %q", got, "certificate.verify")
		}
	})

	t.Run("unknown number", func(t *testing.T) {
		rec := app.do(newRequest(http.MethodGet, "/v1/certificates/verify?number=CTC-0-DEADBEEF"))
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; body %s", rec.Code, rec.Body.String())
		}
		var res struct {
			Valid bool `json:"valid"`
		}
		decode(t, rec, &res)
		if res.Valid {
			t.Error("unknown number should not verify")
		}
		if got := app.audit.lastAction(); got != "certificate.verify_failed" {
			t.Errorf("audit action = %q; want %q", got, "certificate.verify_failed")
		}
	})

	t.Run("missing number", func(t *testing.T) {
		rec := app.do(newRequest(http.MethodGet, "/v1/certificates/verify"))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("code = %v; body %s", rec.Code, rec.Body.String())
		}
	})
}

func TestCertificateApi_verifyQR(t *testing.T) {
	app := setup(t)
	trainee := app.createUser(t, "Awa", "Ilunga", "awa@kahawa.cd", "pass123", user.RoleTrainee, true)
	trainer := app.createUser(t, "Didi", "Mbala", "trainer@kahawa.cd", "pass123", user.RoleTrainer, true)
	cert := app.issueCertificate(t, trainer.ID, trainee.ID, 1, "Latte Art")

	payload := fmt.Sprintf(`{"certificate_number": %q, "verification_url": "http://x"}`, cert.Number)

	t.Run("plain json payload", func(t *testing.T) {
		rec := app.do(newRequest(http.MethodGet, "/v1/certificates/verify-qr?payload="+url.QueryEscape(payload)))
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; body %s", rec.Code, rec.Body.String())
		}
		var res struct {
			Valid  bool   `json:"valid"`
			Number string `json:"certificate_number"`
		}
		decode(t, rec, &res)
		if !res.Valid || res.Number != cert.Number {
			t.Errorf("result = %+v; want a valid match", res)
		}
	})

	t.Run("base64 payload", func(t *testing.T) {
		encoded := base64.StdEncoding.EncodeToString([]byte(payload))
		rec := app.do(newRequest(http.MethodGet, "/v1/certificates/verify-qr?payload="+url.QueryEscape(encoded)))
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; body %s", rec.Code, rec.Body.String())
		}
		var res struct {
			Valid bool `json:"valid"`
		}
		decode(t, rec, &res)
		if !res.Valid {
			t.Error("base64 payload should verify")
		}
	})

	tests := []httpTest{
		{
			name: "missing payload", method: http.MethodGet, path: "/v1/certificates/verify-qr",
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"payload": "this field is required"}`),
		},
		{
			name: "garbage payload", method: http.MethodGet, path: "/v1/certificates/verify-qr?payload=not-json",
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"payload": "invalid qr payload"}`),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.do(newRequest(tt.method, tt.path))
			checkCodeAndData(t, tt, rec)
		})
	}
}

func TestCertificateApi_retrieveWithQRCode(t *testing.T) {
	app := setup(t)
	trainee := app.createUser(t, "Awa", "Ilunga", "awa@kahawa.cd", "pass123", user.RoleTrainee, true)
	trainer := app.createUser(t, "Didi", "Mbala", "trainer@kahawa.cd", "pass123", user.RoleTrainer, true)
	trainerToken := app.getToken(t, trainer)
	cert := app.issueCertificate(t, trainer.ID, trainee.ID, 1, "Latte Art")

	rec := app.do(newAuthRequest(http.MethodGet, "/v1/certificates/"+strconv.Itoa(cert.ID), trainerToken))
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %v; body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		certificate.Certificate
		QRCode string `json:"qr_code"`
	}
	decode(t, rec, &resp)
	if resp.Number != cert.Number {
		t.Errorf("Number = %q; want %q", resp.Number, cert.Number)
	}
	if !strings.HasPrefix(resp.QRCode, "data:image/png;base64,") {
		t.Errorf("qr_code = %.40q; want a PNG data URL", resp.QRCode)
	}
}

func TestCertificateApi_collectionWorkflow(t *testing.T) {
	app := setup(t)
	trainee := app.createUser(t, "Awa", "Ilunga", "awa@kahawa.cd", "pass123", user.RoleTrainee, true)
	trainer := app.createUser(t, "Didi", "Mbala", "trainer@kahawa.cd", "pass123", user.RoleTrainer, true)
	trainerToken := app.getToken(t, trainer)
	cert := app.issueCertificate(t, trainer.ID, trainee.ID, 1, "Latte Art")

	coll, err := app.opts.CertSvc.CollectionStatus(context.Background(), cert.ID)
	if err != nil {
		t.Fatalf("getting collection: %v", err)
	}
	if coll.Status != certificate.CollectionPending {
		t.Fatalf("Status = %q; want %q", coll.Status, certificate.CollectionPending)
	}
	collPath := "/v1/certificates/collections/" + strconv.Itoa(coll.ID)

	t.Run("mark ready", func(t *testing.T) {
		rec := app.do(newAuthRequest(http.MethodPost, collPath+"/ready", trainerToken))
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; body %s", rec.Code, rec.Body.String())
		}
		decode(t, rec, &coll)
		if coll.Status != certificate.CollectionReady || coll.ReferenceCode == "" {
			t.Errorf("collection = %+v; want ready with a reference code", coll)
		}
	})

	t.Run("wrong reference code", func(t *testing.T) {
		body := marshallObj(t, certificate.CollectCertificate{ReferenceCode: "WRONGCODE0", IDDocument: "ID-123"})
		rec := app.do(newAuthRequest(http.MethodPost, collPath+"/collect", trainerToken, body))
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusNotFound,
			wantData: []byte(`{"error": "collection not found"}`),
		}, rec)
	})

	t.Run("missing id document", func(t *testing.T) {
		body := marshallObj(t, certificate.CollectCertificate{ReferenceCode: coll.ReferenceCode})
		rec := app.do(newAuthRequest(http.MethodPost, collPath+"/collect", trainerToken, body))
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"id_document": "this field is required"}`),
		}, rec)
	})

	t.Run("collect", func(t *testing.T) {
		body := marshallObj(t, certificate.CollectCertificate{ReferenceCode: coll.ReferenceCode, IDDocument: "ID-123"})
		rec := app.do(newAuthRequest(http.MethodPost, collPath+"/collect", trainerToken, body))
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; body %s", rec.Code, rec.Body.String())
		}
		var collected certificate.Collection
		decode(t, rec, &collected)
		if collected.Status != certificate.CollectionCollected || collected.CollectedBy != trainer.ID {
			t.Errorf("collection = %+v; want collected by %d", collected, trainer.ID)
		}
		if got := app.audit.lastAction(); got != "certificate.collect" {
			t.Errorf("audit action = %q; want %q", got, "certificate.collect")
		}
	})

	t.Run("collect twice", func(t *testing.T) {
		body := marshallObj(t, certificate.CollectCertificate{ReferenceCode: coll.ReferenceCode, IDDocument: "ID-123"})
		rec := app.do(newAuthRequest(http.MethodPost, collPath+"/collect", trainerToken, body))
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusConflict,
			wantData: []byte(`{"error": "certificate already collected"}`),
		}, rec)
	})
}
