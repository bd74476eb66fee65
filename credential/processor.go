package credential

import (
	"crypto/sha256"
	_ "embed"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/piprate/json-gold/ld"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// ProcessorOpt represents an option for JSON-LD processing.
type ProcessorOpt func(*ProcessorOptions)

// ProcessorOptions holds configuration for JSON-LD processing.
type ProcessorOptions struct {
	documentLoader ld.DocumentLoader
	algorithm      string
}

// WithDocumentLoader sets the document loader for JSON-LD processing.
func WithDocumentLoader(loader ld.DocumentLoader) ProcessorOpt {
	return func(p *ProcessorOptions) {
		p.documentLoader = loader
	}
}

// WithAlgorithm sets the canonicalization algorithm.
func WithAlgorithm(alg string) ProcessorOpt {
	return func(p *ProcessorOptions) {
		p.algorithm = alg
	}
}

// credentialsV1 holds the subset of the W3C VC v1 context that issued
// credentials use. It is served under VCContextV1, so the terms it defines
// must expand to the same IRIs as the published context; credentials that
// use other VC v1 terms need a loader with the full context
// (WithDocumentLoader or WithIssuerDocumentLoader).
//
//go:embed contexts/credentials-v1.jsonld
var credentialsV1 []byte

var (
	defaultLoaderOnce sync.Once
	defaultLoader     ld.DocumentLoader
)

// DefaultDocumentLoader returns the shared caching loader. The VC v1
// context is preloaded; other remote contexts are fetched once over an
// instrumented HTTP client.
func DefaultDocumentLoader() ld.DocumentLoader {
	defaultLoaderOnce.Do(func() {
		client := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
		loader := ld.NewCachingDocumentLoader(ld.NewDefaultDocumentLoader(client))

		var doc map[string]any
		if err := json.Unmarshal(credentialsV1, &doc); err != nil {
			panic(fmt.Sprintf("embedded VC context: %v", err))
		}
		loader.AddDocument(VCContextV1, doc)

		defaultLoader = loader
	})

	return defaultLoader
}

func newProcessorOptions(opts []ProcessorOpt) *ProcessorOptions {
	p := &ProcessorOptions{algorithm: ld.AlgorithmURDNA2015}
	for _, opt := range opts {
		opt(p)
	}
	if p.documentLoader == nil {
		p.documentLoader = DefaultDocumentLoader()
	}

	return p
}

// CanonicalizeDocument canonicalizes a document to N-Quads using JSON-LD
// processing.
func CanonicalizeDocument(doc map[string]any, opts ...ProcessorOpt) ([]byte, error) {
	if doc == nil {
		return nil, fmt.Errorf("failed to canonicalize document: document is nil")
	}
	p := newProcessorOptions(opts)

	ldOptions := ld.NewJsonLdOptions("")
	ldOptions.Format = "application/n-quads"
	ldOptions.Algorithm = p.algorithm
	ldOptions.DocumentLoader = p.documentLoader

	canonicalized, err := ld.NewJsonLdProcessor().Normalize(standardizeToJSONLD(doc), ldOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize document: %w", err)
	}

	nquads, ok := canonicalized.(string)
	if !ok {
		return nil, fmt.Errorf("unexpected normalization result %T", canonicalized)
	}
	if nquads == "" {
		return nil, fmt.Errorf("document normalized to an empty dataset")
	}

	return []byte(nquads), nil
}

// ComputeDigest computes the SHA-256 digest of the input data.
func ComputeDigest(data []byte) []byte {
	hash := sha256.Sum256(data)
	return hash[:]
}

func standardizeToJSONLD(input map[string]any) map[string]any {
	result := make(map[string]any, len(input))
	for key, value := range input {
		if key == "@context" {
			result[key] = value
			continue
		}
		result[key] = convertToJSONLDCompatible(value)
	}

	return result
}

// convertToJSONLDCompatible types scalar values explicitly so numbers and
// booleans survive canonicalization unchanged.
func convertToJSONLDCompatible(value any) any {
	switch v := value.(type) {
	case string, nil:
		return v
	case map[string]any:
		result := make(map[string]any, len(v))
		for key, val := range v {
			result[key] = convertToJSONLDCompatible(val)
		}
		return result
	case Credential:
		return convertToJSONLDCompatible(map[string]any(v))
	case []string:
		result := make([]any, len(v))
		for i, val := range v {
			result[i] = val
		}
		return result
	case []any:
		result := make([]any, len(v))
		for i, val := range v {
			result[i] = convertToJSONLDCompatible(val)
		}
		return result
	case bool:
		return map[string]any{
			"@value": fmt.Sprintf("%v", v),
			"@type":  "http://www.w3.org/2001/XMLSchema#boolean",
		}
	default:
		return map[string]any{
			"@value": fmt.Sprintf("%v", v),
			"@type":  "http://www.w3.org/2001/XMLSchema#string",
		}
	}
}
