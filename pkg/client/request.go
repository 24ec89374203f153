package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/x402zk/credential-gateway/pkg/credential"
	"github.com/x402zk/credential-gateway/pkg/field"
	"github.com/x402zk/credential-gateway/pkg/origin"
	"github.com/x402zk/credential-gateway/pkg/poseidon"
	"github.com/x402zk/credential-gateway/pkg/proofabi"
	"github.com/x402zk/credential-gateway/pkg/proofcache"
	"github.com/x402zk/credential-gateway/pkg/wire"
)

// ErrNoCredential is returned when no usable stored credential exists for
// a service id.
var ErrNoCredential = fmt.Errorf("client: no usable credential for service")

// PresentationOptions tunes a single call to BuildPresentation.
type PresentationOptions struct {
	ForceUnlinkable bool
}

var scalarSplit = new(big.Int).Lsh(big.NewInt(1), 128)

func splitScalarLow(s *big.Int) field.Element {
	_, low := new(big.Int).QuoRem(s, scalarSplit, new(big.Int))
	return field.FromBigInt(low)
}

func splitScalarHigh(s *big.Int) field.Element {
	high := new(big.Int).Rsh(s, 128)
	return field.FromBigInt(high)
}

// BuildPresentation produces the body.zk_credential envelope for a request
// against resourceURL (§4.6.4): it derives origin_id, confirms the stored
// credential is usable, selects an identity_index, serves the proof from
// cache when possible, and otherwise invokes the configured Prover.
func (c *Client) BuildPresentation(ctx context.Context, serviceID string, resourceURL string, opts PresentationOptions) (wire.PresentationEnvelope, error) {
	if c.prover == nil {
		return wire.PresentationEnvelope{}, fmt.Errorf("client: no Prover configured")
	}

	stored, ok, err := c.store.Get(ctx, serviceID)
	if err != nil {
		return wire.PresentationEnvelope{}, fmt.Errorf("client: load stored credential: %w", err)
	}
	if !ok {
		return wire.PresentationEnvelope{}, ErrNoCredential
	}

	now := time.Now().Unix()
	if !stored.IsUsable(now) {
		return wire.PresentationEnvelope{}, fmt.Errorf("client: %w: state=%s", ErrNoCredential, stored.DeriveState(now))
	}

	originID, err := origin.ID(resourceURL)
	if err != nil {
		return wire.PresentationEnvelope{}, err
	}

	identityIndex, err := c.selector.Select(originID, stored.Credential.IdentityBudget, stored.Credential.ServiceID, stored.ObtainedAt, now, opts.ForceUnlinkable, func() (int, error) {
		n, err := c.store.IncrementPresentationCount(ctx, serviceID)
		if err != nil {
			return 0, err
		}
		return n - 1, nil
	})
	if err != nil {
		return wire.PresentationEnvelope{}, fmt.Errorf("client: select identity index: %w", err)
	}

	cacheKey := proofcache.Key{
		ServiceID:     serviceID,
		OriginID:      originID.Hex(),
		IdentityIndex: identityIndex,
		TimeBucket:    c.selector.TimeBucket(now),
	}

	if c.cache != nil {
		if entry, hit := c.cache.Get(cacheKey); hit {
			return presentationFromCacheEntry(stored.Credential, entry), nil
		}
	}

	witness := proofabi.Witness{
		NullifierSeed:  stored.NullifierSeed,
		BlindingFactor: stored.BlindingFactor,
		ServiceID:      stored.Credential.ServiceID,
		Tier:           int64(stored.Credential.Tier),
		IdentityBudget: int64(stored.Credential.IdentityBudget),
		IssuedAt:       stored.Credential.IssuedAt,
		ExpiresAt:      stored.Credential.ExpiresAt,
		CommitmentX:    stored.Credential.Commitment.X,
		CommitmentY:    stored.Credential.Commitment.Y,
		SignatureRX:    stored.Credential.Signature.R.X,
		SignatureRY:    stored.Credential.Signature.R.Y,
		SignatureSLow:  splitScalarLow(stored.Credential.Signature.S),
		SignatureSHigh: splitScalarHigh(stored.Credential.Signature.S),
		IdentityIndex:  int64(identityIndex),
	}
	publicInputs := proofabi.PublicInputs{
		ServiceID:   stored.Credential.ServiceID,
		CurrentTime: now,
		OriginID:    originID,
		PubkeyX:     stored.FacilitatorPubkey.X,
		PubkeyY:     stored.FacilitatorPubkey.Y,
	}

	result, err := c.prover.Prove(ctx, witness, publicInputs)
	if err != nil {
		return wire.PresentationEnvelope{}, fmt.Errorf("client: generate proof: %w", err)
	}

	originToken := poseidon.Hash3(stored.NullifierSeed, originID, field.FromUint64(uint64(identityIndex)))

	entry := proofcache.Entry{
		ProofBytes:  result.Proof,
		OriginToken: originToken.Hex(),
		Tier:        stored.Credential.Tier,
		ExpiresAt:   stored.Credential.ExpiresAt,
	}
	if c.cache != nil {
		c.cache.Set(cacheKey, entry)
	}

	return presentationFromCacheEntry(stored.Credential, entry), nil
}

func presentationFromCacheEntry(cred credential.Credential, entry proofcache.Entry) wire.PresentationEnvelope {
	now := time.Now().Unix()
	return wire.PresentationEnvelope{
		Version: wire.SuiteVersion,
		Suite:   cred.Suite,
		KeyID:   cred.KeyID,
		Proof:   base64.StdEncoding.EncodeToString(entry.ProofBytes),
		PublicOutputs: wire.PublicOutputsWire{
			OriginToken: entry.OriginToken,
			Tier:        entry.Tier,
			ExpiresAt:   entry.ExpiresAt,
			CurrentTime: &now,
		},
	}
}

// AttachPresentation merges body.zk_credential into an arbitrary
// application JSON payload, per §4.6.4's "merging with any application
// payload".
func AttachPresentation(appPayload map[string]interface{}, env wire.PresentationEnvelope) ([]byte, error) {
	if appPayload == nil {
		appPayload = make(map[string]interface{})
	}
	envJSON, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("client: marshal presentation: %w", err)
	}
	var envMap map[string]interface{}
	if err := json.Unmarshal(envJSON, &envMap); err != nil {
		return nil, fmt.Errorf("client: unmarshal presentation: %w", err)
	}
	appPayload["zk_credential"] = envMap
	out, err := json.Marshal(appPayload)
	if err != nil {
		return nil, fmt.Errorf("client: marshal merged request body: %w", err)
	}
	return out, nil
}
