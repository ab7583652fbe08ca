package attestor

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"verinfer/providers"
	"verinfer/shared"
)

// Witness performs HTTPS exchanges on behalf of clients and signs claims
// about what it observed. It is the trust anchor of a transcript proof: the
// proof is only as good as the key this witness signs with.

// WitnessConfig configures a witness instance
type WitnessConfig struct {
	// KeyPair is the claim signing key. Required.
	KeyPair *shared.SigningKeyPair

	// PublicURL is the endpoint recorded in issued proofs so verifiers know
	// which witness to expect signatures from.
	PublicURL string

	// Epoch is stamped into every claim this witness signs
	Epoch uint32

	// AuthSecret enables JWT session auth when non-empty
	AuthSecret []byte

	// TLSConfig overrides the outbound TLS configuration. Nil uses defaults.
	TLSConfig *tls.Config

	// DialTimeout bounds the TCP+TLS dial to the witnessed endpoint
	DialTimeout time.Duration
}

// Witness observes TLS exchanges and issues signed transcript proofs
type Witness struct {
	keyPair     *shared.SigningKeyPair
	address     string
	publicURL   string
	epoch       uint32
	authSecret  []byte
	tlsConfig   *tls.Config
	dialTimeout time.Duration
}

// NewWitness creates a witness from the given configuration
func NewWitness(cfg WitnessConfig) (*Witness, error) {
	if cfg.KeyPair == nil {
		return nil, fmt.Errorf("witness requires a signing key pair")
	}
	epoch := cfg.Epoch
	if epoch == 0 {
		epoch = 1
	}
	dialTimeout := cfg.DialTimeout
	if dialTimeout == 0 {
		dialTimeout = 30 * time.Second
	}

	w := &Witness{
		keyPair:     cfg.KeyPair,
		address:     strings.ToLower(cfg.KeyPair.GetEthAddress().Hex()),
		publicURL:   cfg.PublicURL,
		epoch:       epoch,
		authSecret:  cfg.AuthSecret,
		tlsConfig:   cfg.TLSConfig,
		dialTimeout: dialTimeout,
	}

	logger.Info("Witness initialized",
		zap.String("component", "Witness"),
		zap.String("operation", "NewWitness"),
		zap.String("address", w.address),
		zap.Uint32("epoch", w.epoch))

	return w, nil
}

// Address returns the lowercase 0x address of the witness signing key
func (w *Witness) Address() string {
	return w.address
}

// CreateClaim performs the requested HTTPS exchange and signs a claim over
// it. The secret parameters are used to build the request and redacted from
// the transcript before any matching or signing happens, so they can never
// reach the proof.
func (w *Witness) CreateClaim(ctx context.Context, req *shared.ClaimRequestData) (*shared.TranscriptProof, error) {
	if req == nil {
		return nil, fmt.Errorf("nil claim request")
	}
	if req.Owner == "" {
		return nil, fmt.Errorf("claim request has no owner")
	}
	if len(req.Parameters) == 0 {
		return nil, fmt.Errorf("claim request has no parameters")
	}

	logger.Info("Creating claim",
		zap.String("component", "Witness"),
		zap.String("operation", "CreateClaim"),
		zap.String("provider", req.Provider),
		zap.String("owner", req.Owner))

	if err := providers.ValidateProviderParams(req.Provider, req.Parameters); err != nil {
		return nil, err
	}

	var params providers.WitnessParams
	if err := json.Unmarshal(req.Parameters, &params); err != nil {
		return nil, fmt.Errorf("failed to decode provider parameters: %v", err)
	}

	var secret providers.WitnessSecretParams
	if len(req.SecretParams) > 0 {
		if err := providers.ValidateProviderSecretParams(req.Provider, req.SecretParams); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(req.SecretParams, &secret); err != nil {
			return nil, fmt.Errorf("failed to decode secret parameters: %v", err)
		}
	}

	request, err := providers.CreateWitnessedRequest(&secret, &params)
	if err != nil {
		return nil, err
	}

	response, err := w.fetchTranscript(ctx, params.URL, request.Data)
	if err != nil {
		return nil, err
	}

	reveals, err := providers.GetResponseRevealRanges(response, &params)
	if err != nil {
		return nil, err
	}
	redacted := providers.ApplyResponseRedactions(response, reveals)

	extracted, err := providers.AssertResponseMatches(string(redacted), params.ResponseMatches)
	if err != nil {
		return nil, err
	}

	contextJSON, err := buildClaimContext(req.Context, extracted)
	if err != nil {
		return nil, err
	}

	claim := shared.CompleteClaimData{
		ClaimInfo: shared.ClaimInfo{
			Provider:   req.Provider,
			Parameters: string(req.Parameters),
			Context:    contextJSON,
		},
		Owner:      req.Owner,
		TimestampS: uint32(time.Now().Unix()),
		Epoch:      w.epoch,
	}
	claim.Identifier = shared.ComputeClaimInfoIdentifier(claim.ClaimInfo)

	signature, err := w.keyPair.SignClaim(claim)
	if err != nil {
		return nil, err
	}

	proof := &shared.TranscriptProof{
		Identifier:          claim.Identifier,
		Provider:            claim.Provider,
		Parameters:          claim.Parameters,
		Owner:               claim.Owner,
		TimestampS:          claim.TimestampS,
		Epoch:               claim.Epoch,
		Context:             claim.Context,
		Signatures:          [][]byte{signature},
		Witnesses:           []shared.WitnessData{{ID: w.address, URL: w.publicURL}},
		ExtractedParameters: extracted,
	}

	logger.Info("Claim created",
		zap.String("component", "Witness"),
		zap.String("operation", "CreateClaim"),
		zap.String("identifier", claim.Identifier),
		zap.Int("extracted_params", len(extracted)))

	return proof, nil
}

// fetchTranscript dials the witnessed endpoint over TLS, writes the raw
// request and streams the response into the parser until it is complete or
// the server closes the connection. Returns the raw response bytes.
func (w *Witness) fetchTranscript(ctx context.Context, targetURL string, rawRequest []byte) ([]byte, error) {
	u, err := url.Parse(targetURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %v", targetURL, err)
	}
	port := u.Port()
	if port == "" {
		port = "443"
	}
	addr := net.JoinHostPort(u.Hostname(), port)

	conf := &tls.Config{}
	if w.tlsConfig != nil {
		conf = w.tlsConfig.Clone()
	}
	if conf.ServerName == "" {
		conf.ServerName = u.Hostname()
	}

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: w.dialTimeout},
		Config:    conf,
	}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("tls dial %s failed: %v", addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if _, err := conn.Write(rawRequest); err != nil {
		return nil, fmt.Errorf("failed to write request to %s: %v", addr, err)
	}

	parser := providers.NewHTTPResponseParser()
	response := []byte{}
	buf := make([]byte, 32*1024)
	for {
		n, readErr := conn.Read(buf)
		if n > 0 {
			response = append(response, buf[:n]...)
			if err := parser.OnChunk(buf[:n]); err != nil {
				return nil, fmt.Errorf("failed to parse response: %v", err)
			}
			if parser.Response.Complete {
				break
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return nil, fmt.Errorf("failed to read response from %s: %v", addr, readErr)
		}
	}
	if err := parser.StreamEnded(); err != nil {
		return nil, fmt.Errorf("incomplete response from %s: %v", addr, err)
	}

	logger.Debug("Transcript fetched",
		zap.String("component", "Witness"),
		zap.String("operation", "fetchTranscript"),
		zap.String("addr", addr),
		zap.Int("request_bytes", len(rawRequest)),
		zap.Int("response_bytes", len(response)))

	return response, nil
}

// buildClaimContext merges the extracted parameters into the request context
// JSON. The result is part of the identifier preimage, so the witness
// signature covers every extracted value.
func buildClaimContext(baseContext string, extracted map[string]string) (string, error) {
	ctx := map[string]interface{}{}
	if baseContext != "" {
		if err := json.Unmarshal([]byte(baseContext), &ctx); err != nil {
			return "", fmt.Errorf("claim context is not a JSON object: %v", err)
		}
	}
	if len(extracted) > 0 {
		ctx["extractedParameters"] = extracted
	}
	out, err := json.Marshal(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to encode claim context: %v", err)
	}
	return string(out), nil
}
