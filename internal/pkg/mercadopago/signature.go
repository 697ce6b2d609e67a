package mercadopago

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

var alphanumeric = regexp.MustCompile(`^[A-Za-z0-9]+$`)

// ParseSignature splits an x-signature header ("ts=...,v1=...") into parts.
func ParseSignature(header string) (ts, v1 string) {
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "ts":
			ts = strings.TrimSpace(value)
		case "v1":
			v1 = strings.TrimSpace(value)
		}
	}
	return ts, v1
}

// Manifest builds the signed template. Missing values are left out.
func Manifest(dataID, requestID, ts string) string {
	if alphanumeric.MatchString(dataID) {
		dataID = strings.ToLower(dataID)
	}
	var b strings.Builder
	if dataID != "" {
		b.WriteString("id:" + dataID + ";")
	}
	if requestID != "" {
		b.WriteString("request-id:" + requestID + ";")
	}
	if ts != "" {
		b.WriteString("ts:" + ts + ";")
	}
	return b.String()
}

// Sign returns hex(hmac_sha256(secret, manifest)).
func Sign(secret, manifest string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(manifest))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a webhook x-signature header against the secret.
func VerifySignature(secret, xSignature, xRequestID, dataID string) bool {
	secret = strings.TrimSpace(secret)
	ts, v1 := ParseSignature(xSignature)
	if secret == "" || ts == "" || v1 == "" {
		return false
	}
	got, err := hex.DecodeString(strings.ToLower(v1))
	if err != nil {
		return false
	}
	want, _ := hex.DecodeString(Sign(secret, Manifest(dataID, xRequestID, ts)))
	return hmac.Equal(got, want)
}
