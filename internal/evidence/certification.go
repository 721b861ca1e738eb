package evidence

// Certification is the "certification" evidence family: a TPM-quote-shaped
// item carrying a signing-key capability list and a signed subject/message
// payload. Grounded on certification.py's Certification/CertificationCapabilities/
// CertificationKey/CertificationData classes.
type Certification struct {
	EvidenceType string
	Capabilities *CertificationCapabilities
	Data         *CertificationData
}

// CertificationCapabilities describes what an agent can certify: which hash
// algorithms and signature schemes it supports, which PCR/subject indices are
// available per algorithm, and the keys it can sign with.
type CertificationCapabilities struct {
	ComponentVersion   string
	HashAlgorithms     []string
	SignatureSchemes   []string
	AvailableSubjects  map[string][]int
	CertificationKeys  []CertificationKey
}

// CertificationKey describes one key an agent can certify with.
type CertificationKey struct {
	KeyClass         string
	KeyAlgorithm     string
	KeySize          int
	ServerIdentifier string
}

// CertificationData is the signed payload collected from an agent: the
// subject data the quote covers, the attestation message, and the signature
// over it.
type CertificationData struct {
	SubjectData string
	Message     string
	Signature   string
}

func (c *Certification) RenderSupported() map[string]any {
	if c.Capabilities == nil {
		return nil
	}
	return map[string]any{
		"evidence_class": "certification",
		"evidence_type":  c.EvidenceType,
		"capabilities":   c.Capabilities.render(),
	}
}

func (c *Certification) RenderCollected() map[string]any {
	if c.Data == nil {
		return nil
	}
	return map[string]any{
		"evidence_class": "certification",
		"evidence_type":  c.EvidenceType,
		"data":           c.Data.render(),
	}
}

func (c *Certification) Clone() Item {
	clone := *c
	if c.Capabilities != nil {
		caps := *c.Capabilities
		clone.Capabilities = &caps
	}
	if c.Data != nil {
		data := *c.Data
		clone.Data = &data
	}
	return &clone
}

func (cc *CertificationCapabilities) render() map[string]any {
	keys := make([]map[string]any, 0, len(cc.CertificationKeys))
	for _, k := range cc.CertificationKeys {
		keys = append(keys, k.render())
	}
	return map[string]any{
		"component_version":   cc.ComponentVersion,
		"hash_algorithms":     cc.HashAlgorithms,
		"signature_schemes":   cc.SignatureSchemes,
		"available_subjects":  cc.AvailableSubjects,
		"certification_keys":  keys,
	}
}

func (ck CertificationKey) render() map[string]any {
	return map[string]any{
		"key_class":         ck.KeyClass,
		"key_algorithm":     ck.KeyAlgorithm,
		"key_size":          ck.KeySize,
		"server_identifier": ck.ServerIdentifier,
	}
}

func (cd *CertificationData) render() map[string]any {
	return map[string]any{
		"subject_data": cd.SubjectData,
		"message":      cd.Message,
		"signature":    cd.Signature,
	}
}
