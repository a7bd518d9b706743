package validator

import (
	"fmt"
	"time"

	enc "github.com/named-data/ndnd/std/encoding"
	"github.com/named-data/ndnd/std/log"
	"github.com/named-data/ndnd/std/ndn"
	sec "github.com/named-data/ndnd/std/security"
	sig "github.com/named-data/ndnd/std/security/signer"

	"github.com/named-data/ndn-validator/policy"
)

// signedObject is the view of a packet the engine carries through one
// validation: the signed name, the packet handed to the crypto
// primitive, the covered wire and the signature itself.
type signedObject struct {
	name       enc.Name
	packet     ndn.Data
	sigCovered enc.Wire
	signature  ndn.Signature
}

// ValidationRequest is a deferred unit of work: fetch the named
// certificate, validate it recursively as a Data packet, then resume
// the parent validation with the result. A request is resolved exactly
// once, through either continuation.
type ValidationRequest struct {
	// CertName is the key locator of the certificate to resolve.
	CertName enc.Name
	// Step is the chain depth the recursive validation runs at.
	Step int

	onValidated func(cert ndn.Data)
	onFailure   func(error)
}

// checkSignature locates the certificate behind a Continue verdict.
// Trust anchors and cached certificates resolve synchronously; anything
// else becomes a ValidationRequest for the caller to dispatch.
func (v *Validator) checkSignature(obj signedObject, step int,
	onSuccess func(), onFailure func(error), nextSteps *[]*ValidationRequest) {

	if obj.signature == nil {
		onFailure(ErrNotSigned)
		return
	}
	keyName := obj.signature.KeyName()
	if len(keyName) == 0 {
		onFailure(ErrMissingKeyLocator)
		return
	}

	_, anchors := v.snapshot()

	// Trust anchor short-circuit: terminal, never fetched or recursed.
	if anchor := anchors.Find(keyName); anchor != nil {
		v.verifyAgainst(obj, anchor, onSuccess, onFailure)
		return
	}

	// Previously validated certificate.
	if cert := v.cache.Lookup(keyName); cert != nil {
		v.verifyAgainst(obj, cert, onSuccess, onFailure)
		return
	}

	req := &ValidationRequest{
		CertName: keyName,
		Step:     step + 1,
		onValidated: func(cert ndn.Data) {
			v.cache.Insert(cert, certCacheTtl(cert, v.cacheTtl))
			v.verifyAgainst(obj, cert, onSuccess, onFailure)
		},
		onFailure: func(err error) {
			onFailure(fmt.Errorf("%w: %w", ErrUntrustedCert, err))
		},
	}
	*nextSteps = append(*nextSteps, req)
}

// run resolves a ValidationRequest: fetch, freshness check, then
// recursive validation of the certificate as a Data packet at the
// request's step.
func (v *Validator) run(req *ValidationRequest) {
	log.Debug(v, "Fetching certificate", "name", req.CertName)

	v.fetch(req.CertName, &ndn.InterestConfig{
		CanBePrefix: true,
		MustBeFresh: true,
	}, func(res ndn.ExpressCallbackArgs) {
		if res.Error == nil && res.Result != ndn.InterestResultData {
			res.Error = fmt.Errorf("%w (%s): %s", ErrFetchFailed, req.CertName, res.Result)
		}
		if res.Error != nil {
			req.onFailure(res.Error)
			return
		}

		cert := res.Data
		if sec.CertIsExpired(cert) {
			req.onFailure(fmt.Errorf("%w: %s", ErrCertExpired, cert.Name()))
			return
		}

		certObj := signedObject{
			name:       cert.Name(),
			packet:     cert,
			sigCovered: res.SigCovered,
			signature:  cert.Signature(),
		}
		v.validate(certObj, policy.DataRule, req.Step, func() {
			req.onValidated(cert)
		}, req.onFailure)
	})
}

// verifyAgainst performs the cryptographic check of obj against a
// trusted certificate and resolves the caller. This is the terminal
// step of every accepted chain.
func (v *Validator) verifyAgainst(obj signedObject, cert ndn.Data, onSuccess func(), onFailure func(error)) {
	valid, err := sig.ValidateData(obj.packet, obj.sigCovered, cert)
	if !valid || err != nil {
		log.Debug(v, "Signature check failed", "name", obj.name, "cert", cert.Name(), "err", err)
		if err != nil {
			onFailure(fmt.Errorf("%w: %v", ErrInvalidSignature, err))
		} else {
			onFailure(ErrInvalidSignature)
		}
		return
	}
	onSuccess()
}

// certCacheTtl bounds the memoization of a certificate by its
// remaining validity.
func certCacheTtl(cert ndn.Data, limit time.Duration) time.Duration {
	if s := cert.Signature(); s != nil {
		if _, notAfter := s.Validity(); notAfter.IsSet() {
			if remain := time.Until(notAfter.Unwrap()); remain < limit {
				return remain
			}
		}
	}
	return limit
}
