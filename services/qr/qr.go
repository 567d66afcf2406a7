// Package qrsvc renders QR codes as PNG data URLs for embedding in API
// responses: certificate verification links and authenticator enrollment
// URLs.
package qrsvc

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/trezcool/kahawa/core"
)

const pngSize = 256 // px

type Service struct {
	frontendBaseURL string
}

func NewService(conf *core.Config) *Service {
	return &Service{frontendBaseURL: conf.FrontendBaseURL}
}

func (svc Service) encode(content string) (string, error) {
	png, err := qrcode.Encode(content, qrcode.Medium, pngSize)
	if err != nil {
		return "", errors.Wrap(err, "encoding qr code")
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

// CertificateQR encodes a certificate's verification payload: a JSON object
// carrying the number and the public verification link, scannable by the
// verify-qr endpoint.
func (svc Service) CertificateQR(certNumber string) (string, error) {
	payload, err := json.Marshal(struct {
		Number    string `json:"certificate_number"`
		VerifyURL string `json:"verification_url"`
	}{certNumber, fmt.Sprintf("%s/verify-certificate?number=%s", svc.frontendBaseURL, certNumber)})
	if err != nil {
		return "", errors.Wrap(err, "marshalling qr payload")
	}
	return svc.encode(string(payload))
}

// OTPAuthQR encodes an otpauth:// enrollment URL for authenticator apps.
func (svc Service) OTPAuthQR(otpauthURL string) (string, error) {
	return svc.encode(otpauthURL)
}
