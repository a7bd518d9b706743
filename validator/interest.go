package validator

import (
	"fmt"
	"time"

	enc "github.com/named-data/ndnd/std/encoding"
	"github.com/named-data/ndnd/std/ndn"
	"github.com/named-data/ndnd/std/types/optional"
)

// TLV types of the signature envelope a signed Interest carries in its
// final two name components. spec_2022 only decodes the parameter
// based signed-interest format, so the name-embedded envelope is
// decoded here.
const (
	tlvSignatureInfo  enc.TLNum = 0x16
	tlvSignatureValue enc.TLNum = 0x17
	tlvSignatureType  enc.TLNum = 0x1b
	tlvKeyLocator     enc.TLNum = 0x1c
)

// signedInterestObject reconstructs the signature of an Interest: the
// final two name components are the SignatureInfo and SignatureValue
// envelopes, the remaining prefix is the signed name, and the
// signature covers every name component before the SignatureValue.
func signedInterestObject(interest ndn.Interest) (signedObject, error) {
	name := interest.Name()
	if len(name) < 3 {
		return signedObject{}, fmt.Errorf("%w: interest name too short: %s", ErrNotSigned, name)
	}

	signature, err := parseInterestSignature(name.At(-2).Val, name.At(-1).Val)
	if err != nil {
		return signedObject{}, err
	}

	sigCovered := make(enc.Wire, 0, len(name)-1)
	for _, comp := range name[:len(name)-1] {
		sigCovered = append(sigCovered, comp.Bytes())
	}

	signedName := name.Prefix(-2)
	return signedObject{
		name:       signedName,
		packet:     &interestPacket{name: signedName, sig: signature},
		sigCovered: sigCovered,
		signature:  signature,
	}, nil
}

func parseInterestSignature(infoWire, valueWire []byte) (*interestSignature, error) {
	info, err := tlvValue(infoWire, tlvSignatureInfo)
	if err != nil {
		return nil, fmt.Errorf("%w: bad SignatureInfo component", ErrNotSigned)
	}

	signature := &interestSignature{sigType: ndn.SignatureNone}
	for len(info) > 0 {
		typ, val, rest, err := readTlv(info)
		if err != nil {
			return nil, fmt.Errorf("%w: bad SignatureInfo field", ErrNotSigned)
		}
		switch typ {
		case tlvSignatureType:
			if len(val) == 0 || len(val) > 8 {
				return nil, fmt.Errorf("%w: bad SignatureType length: %d", ErrNotSigned, len(val))
			}
			signature.sigType = ndn.SigType(numberVal(val))
		case tlvKeyLocator:
			// The locator holds a Name; a KeyDigest locator carries no
			// name and leaves the locator empty.
			if keyName, err := enc.NameFromBytes(val); err == nil {
				signature.keyName = keyName
			}
		}
		info = rest
	}

	value, err := tlvValue(valueWire, tlvSignatureValue)
	if err != nil {
		return nil, fmt.Errorf("%w: bad SignatureValue component", ErrNotSigned)
	}
	signature.value = value

	return signature, nil
}

// tlvValue unwraps a single TLV block of the expected type.
func tlvValue(buf []byte, expect enc.TLNum) ([]byte, error) {
	typ, val, rest, err := readTlv(buf)
	if err != nil {
		return nil, err
	}
	if typ != expect || len(rest) != 0 {
		return nil, fmt.Errorf("unexpected TLV block: %d", typ)
	}
	return val, nil
}

// readTlv reads one TLV block off the front of buf.
func readTlv(buf []byte) (typ enc.TLNum, val []byte, rest []byte, err error) {
	typ, used, err := readTlNum(buf)
	if err != nil {
		return 0, nil, nil, err
	}
	length, lused, err := readTlNum(buf[used:])
	if err != nil {
		return 0, nil, nil, err
	}
	start := used + lused
	end := start + int(length)
	if end > len(buf) {
		return 0, nil, nil, fmt.Errorf("truncated TLV block")
	}
	return typ, buf[start:end], buf[end:], nil
}

func readTlNum(buf []byte) (enc.TLNum, int, error) {
	if len(buf) == 0 {
		return 0, 0, fmt.Errorf("empty TLV buffer")
	}
	size := 1
	switch {
	case buf[0] == 0xfd:
		size = 3
	case buf[0] == 0xfe:
		size = 5
	case buf[0] == 0xff:
		size = 9
	}
	if len(buf) < size {
		return 0, 0, fmt.Errorf("truncated TLV number")
	}
	val, _ := enc.ParseTLNum(buf)
	return val, size, nil
}

func numberVal(buf []byte) uint64 {
	ret := uint64(0)
	for _, b := range buf {
		ret = ret<<8 | uint64(b)
	}
	return ret
}

// interestSignature is the reconstructed signature of a signed
// Interest.
type interestSignature struct {
	sigType ndn.SigType
	keyName enc.Name
	value   []byte
}

func (s *interestSignature) SigType() ndn.SigType {
	return s.sigType
}

func (s *interestSignature) KeyName() enc.Name {
	return s.keyName
}

func (s *interestSignature) SigNonce() []byte {
	return nil
}

func (s *interestSignature) SigTime() *time.Time {
	return nil
}

func (s *interestSignature) SigSeqNum() *uint64 {
	return nil
}

func (s *interestSignature) Validity() (notBefore, notAfter optional.Optional[time.Time]) {
	return optional.None[time.Time](), optional.None[time.Time]()
}

func (s *interestSignature) SigValue() []byte {
	return s.value
}

// interestPacket adapts a signed Interest to the Data view the crypto
// primitive dispatches on. Only the name and the signature carry
// information.
type interestPacket struct {
	name enc.Name
	sig  *interestSignature
}

func (p *interestPacket) Name() enc.Name {
	return p.name
}

func (p *interestPacket) ContentType() optional.Optional[ndn.ContentType] {
	return optional.None[ndn.ContentType]()
}

func (p *interestPacket) Freshness() optional.Optional[time.Duration] {
	return optional.None[time.Duration]()
}

func (p *interestPacket) FinalBlockID() optional.Optional[enc.Component] {
	return optional.None[enc.Component]()
}

func (p *interestPacket) Content() enc.Wire {
	return nil
}

func (p *interestPacket) Signature() ndn.Signature {
	return p.sig
}

func (p *interestPacket) CrossSchema() enc.Wire {
	return nil
}
