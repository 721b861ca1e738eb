package evidence

import (
	_ "embed"
)

//go:embed testdata/uefi_log.txt
var uefiLogContents string

//go:embed testdata/ima_log.txt
var imaLogContents string

// NewMockTPMQuote builds a "certification" evidence item shaped like a TPM
// quote capability/response pair, for use as fixture data in load scenarios
// that don't need a real signed quote. Grounded on mock_evidence.py's
// MockTPMQuote.
func NewMockTPMQuote() *Certification {
	return &Certification{
		EvidenceType: "tpm_quote",
		Capabilities: &CertificationCapabilities{
			ComponentVersion: "2.0",
			HashAlgorithms:   []string{"sha256", "sha1"},
			SignatureSchemes: []string{"rsassa"},
			AvailableSubjects: map[string][]int{
				"sha1":   pcrRange(23),
				"sha256": pcrRange(23),
			},
			CertificationKeys: []CertificationKey{
				{
					KeyClass:         "asymmetric",
					KeyAlgorithm:     "rsa",
					KeySize:          2048,
					ServerIdentifier: "ak",
				},
			},
		},
		Data: &CertificationData{
			SubjectData: mockQuoteSubjectData,
			Message:     mockQuoteMessage,
			Signature:   mockQuoteSignature,
		},
	}
}

// NewMockUEFILog builds a "log" evidence item shaped like a UEFI event log.
// Grounded on mock_evidence.py's MockUEFILog.
func NewMockUEFILog() *Log {
	return &Log{
		EvidenceType: "uefi_log",
		Capabilities: &LogCapabilities{
			EntryCount:            20,
			SupportsPartialAccess: false,
			Appendable:            false,
			Formats:               []string{"application/octet-stream"},
		},
		Data: &LogData{Entries: uefiLogContents},
	}
}

// NewMockIMALog builds a "log" evidence item shaped like an IMA measurement
// log. Grounded on mock_evidence.py's MockIMALog.
func NewMockIMALog() *Log {
	return &Log{
		EvidenceType: "ima_log",
		Capabilities: &LogCapabilities{
			EntryCount:            20,
			SupportsPartialAccess: true,
			Appendable:            true,
			Formats:               []string{"text/plain"},
		},
		Data: &LogData{Entries: imaLogContents},
	}
}

func pcrRange(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// Abbreviated mock quote material. The original bytes are placeholder TPM
// wire structures with no semantic meaning beyond "non-empty base64 blob";
// the harness never parses or verifies them.
const (
	mockQuoteSubjectData = "AQAAAAsAA///AQAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	mockQuoteMessage      = "/1RDR4AYACIAC7s9pXY4dla3uHjUOVIJLQQ+VXb8+AhpubvOfxvMGB/aABRTYjd0Tmxxc2QzMnVJMVpQV3REcw=="
	mockQuoteSignature    = "ABQACwEACxh9sNgq3oYbq87obxRPA8v3tzwuBYLr53u1hz/iAaErnr5L+pHNvslCHXIm3SXDrpHdRp6GAA=="
)
