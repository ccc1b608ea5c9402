package link

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/nao1215/vpnprobe/internal/model"
	"golang.org/x/text/unicode/norm"
)

// SchemeVMess is the link prefix handled by ParseVMess.
const SchemeVMess = "vmess"

const (
	// defaultCipher is the VMess body encryption used when "scy" is absent.
	defaultCipher = "auto"
	// defaultHeaderType is the obfuscation header used when "type" is absent.
	defaultHeaderType = "none"
)

// flexInt accepts both JSON numbers and numeric strings.
// VMess links in the wild use either form for "port" and "aid".
type flexInt int

// UnmarshalJSON implements json.Unmarshaler.
func (f *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*f = 0
			return nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("not a number: %q", s)
		}
		*f = flexInt(n)
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexInt(n)
	return nil
}

// vmessRecord is the JSON object carried inside a vmess:// link.
type vmessRecord struct {
	Version     json.RawMessage `json:"v,omitempty"`
	Name        string          `json:"ps"`
	Address     string          `json:"add"`
	Port        flexInt         `json:"port"`
	ID          string          `json:"id"`
	AlterID     flexInt         `json:"aid"`
	Cipher      string          `json:"scy,omitempty"`
	Network     string          `json:"net"`
	HeaderType  string          `json:"type"`
	Host        string          `json:"host"`
	Path        string          `json:"path"`
	TLS         string          `json:"tls"`
	SNI         string          `json:"sni,omitempty"`
	ALPN        string          `json:"alpn,omitempty"`
	Fingerprint string          `json:"fp,omitempty"`
}

// ParseVMess decodes one vmess:// link into a profile.
//
// The payload is treated strictly as data: it is decoded from base64 and
// unmarshaled as a JSON object, nothing else. Optional fields receive their
// defaults (network tcp, security none, display name address:port).
func ParseVMess(raw string) (model.ServerProfile, error) {
	line := strings.TrimSpace(raw)
	prefix := SchemeVMess + "://"
	if len(line) < len(prefix) || !strings.EqualFold(line[:len(prefix)], prefix) {
		return model.ServerProfile{}, newDecodeError(raw, fmt.Errorf("%w: missing %s prefix", ErrPayload, prefix))
	}
	payload := strings.TrimSpace(line[len(prefix):])
	// Some generators append a "#remark" fragment after the payload.
	if i := strings.IndexByte(payload, '#'); i >= 0 {
		payload = payload[:i]
	}
	if payload == "" {
		return model.ServerProfile{}, newDecodeError(raw, ErrEmptyPayload)
	}

	decoded, err := DecodeBase64(payload)
	if err != nil {
		return model.ServerProfile{}, newDecodeError(raw, errors.Join(ErrBase64, err))
	}

	var rec vmessRecord
	dec := json.NewDecoder(bytes.NewReader(bytes.TrimSpace(decoded)))
	if err := dec.Decode(&rec); err != nil {
		return model.ServerProfile{}, newDecodeError(raw, errors.Join(ErrPayload, err))
	}

	profile, err := rec.toProfile()
	if err != nil {
		return model.ServerProfile{}, newDecodeError(raw, err)
	}
	profile.Raw = line
	profile.Fingerprint = Fingerprint(line)
	return profile, nil
}

// toProfile applies defaults and validates the record.
func (r vmessRecord) toProfile() (model.ServerProfile, error) {
	network, err := model.ParseNetwork(r.Network)
	if err != nil {
		return model.ServerProfile{}, err
	}
	security, err := model.ParseSecurity(r.TLS)
	if err != nil {
		return model.ServerProfile{}, err
	}

	p := model.ServerProfile{
		Address:        strings.TrimSpace(r.Address),
		Port:           int(r.Port),
		UserID:         strings.TrimSpace(r.ID),
		AlterID:        int(r.AlterID),
		Cipher:         strings.TrimSpace(r.Cipher),
		Network:        network,
		HeaderType:     strings.TrimSpace(r.HeaderType),
		Security:       security,
		Host:           strings.TrimSpace(r.Host),
		Path:           strings.TrimSpace(r.Path),
		SNI:            strings.TrimSpace(r.SNI),
		ALPN:           strings.TrimSpace(r.ALPN),
		TLSFingerprint: strings.TrimSpace(r.Fingerprint),
		DisplayName:    norm.NFC.String(strings.TrimSpace(r.Name)),
	}
	if p.AlterID < 0 {
		return model.ServerProfile{}, fmt.Errorf("%w: negative alterId", ErrPayload)
	}
	if p.Cipher == "" {
		p.Cipher = defaultCipher
	}
	if p.HeaderType == "" {
		p.HeaderType = defaultHeaderType
	}

	if err := p.Validate(); err != nil {
		return model.ServerProfile{}, err
	}
	if p.DisplayName == "" {
		p.DisplayName = p.ID()
	}
	return p, nil
}

// EncodeVMess renders a profile as a vmess:// link.
// Parsing the result yields a profile equal to p in every decoded field.
func EncodeVMess(p model.ServerProfile) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	tls := ""
	if p.Security == model.SecurityTLS {
		tls = string(model.SecurityTLS)
	}
	rec := vmessRecord{
		Version:     json.RawMessage(`"2"`),
		Name:        p.DisplayName,
		Address:     p.Address,
		Port:        flexInt(p.Port),
		ID:          p.UserID,
		AlterID:     flexInt(p.AlterID),
		Cipher:      p.Cipher,
		Network:     p.Network.String(),
		HeaderType:  p.HeaderType,
		Host:        p.Host,
		Path:        p.Path,
		TLS:         tls,
		SNI:         p.SNI,
		ALPN:        p.ALPN,
		Fingerprint: p.TLSFingerprint,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}
	return SchemeVMess + "://" + EncodeBase64(data), nil
}
