package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// VerifyWebhookSignature checks the x-signature header against
// HMAC-SHA256("id:<id>;request-id:<reqid>;ts:<ts>;"). It only fails on a
// signature that was present and did not match; missing secret, headers or
// header parts leave the request unauthenticated but accepted.
func VerifyWebhookSignature(signatureHeader, requestID, resourceID, webhookSecret string) error {
	secret := strings.TrimSpace(webhookSecret)
	sig := strings.TrimSpace(signatureHeader)
	if secret == "" || sig == "" || strings.TrimSpace(requestID) == "" {
		return nil
	}

	ts, v1 := parseSignatureHeader(sig)
	if ts == "" || v1 == "" {
		return nil
	}

	expected, err := hex.DecodeString(strings.ToLower(v1))
	if err != nil {
		return ErrSignatureInvalid
	}

	manifest := signatureManifest(resourceID, requestID, ts)
	if !verifyHMAC([]byte(manifest), expected, []byte(secret)) {
		return ErrSignatureInvalid
	}

	return nil
}

func SignWebhookManifest(resourceID, requestID, ts, webhookSecret string) string {
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	mac.Write([]byte(signatureManifest(resourceID, requestID, ts)))
	return hex.EncodeToString(mac.Sum(nil))
}

func signatureManifest(resourceID, requestID, ts string) string {
	// alphanumeric ids are signed lowercased
	return "id:" + strings.ToLower(resourceID) + ";request-id:" + requestID + ";ts:" + ts + ";"
}

func parseSignatureHeader(header string) (ts, v1 string) {
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

func verifyHMAC(payload, expectedSig, secret []byte) bool {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), expectedSig)
}
