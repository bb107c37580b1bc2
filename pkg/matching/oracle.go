package matching

import (
	"context"
	"errors"
	"strings"

	"github.com/scoutalgo/clover/pkg/models"
)

// Oracle verdicts
const (
	OracleVerdictMatch   = "match"
	OracleVerdictNoMatch = "no_match"
)

// ErrMalformedOracleResponse marks a response that cannot be interpreted
var ErrMalformedOracleResponse = errors.New("malformed oracle response")

// Oracle is the external arbiter consulted for uncertain cases. Implementations
// may be slow, rate-limited and fallible.
type Oracle interface {
	Arbitrate(ctx context.Context, req OracleRequest) (*OracleResponse, error)
}

// OracleListing is the attribute view of a listing sent to the oracle
type OracleListing struct {
	ID        string `json:"id"`
	Source    string `json:"source"`
	Name      string `json:"name"`
	Brand     string `json:"brand,omitempty"`
	Quantity  string `json:"quantity,omitempty"`
	Category  string `json:"category,omitempty"`
	Brandless bool   `json:"brandless,omitempty"`
}

// OracleCandidate adds the local scoring evidence to a candidate listing
type OracleCandidate struct {
	OracleListing
	LocalScore  int      `json:"local_score"`
	Reasons     []string `json:"reasons,omitempty"`
	SourceCount int      `json:"source_count"`
}

// OracleRequest asks which candidate, if any, is the same product as the query
type OracleRequest struct {
	Query      OracleListing     `json:"query"`
	Candidates []OracleCandidate `json:"candidates"`
}

// OracleResponse is the oracle's answer
type OracleResponse struct {
	MatchedID  string `json:"matched_id"`
	Confidence int    `json:"confidence"`
	Verdict    string `json:"verdict"`
	Rationale  string `json:"rationale"`
}

// Validate checks the response against the request it answers
func (r *OracleResponse) Validate(req OracleRequest) error {
	if r.Confidence < 0 || r.Confidence > 100 {
		return ErrMalformedOracleResponse
	}
	switch r.Verdict {
	case OracleVerdictNoMatch:
		return nil
	case OracleVerdictMatch:
		for _, c := range req.Candidates {
			if c.ID == r.MatchedID {
				return nil
			}
		}
		return ErrMalformedOracleResponse
	default:
		return ErrMalformedOracleResponse
	}
}

func oracleListing(p *Profile) OracleListing {
	ol := OracleListing{
		ID:        p.Listing.ID,
		Source:    p.Listing.Source,
		Name:      p.Listing.Name,
		Brand:     p.Listing.Brand,
		Category:  strings.Join(p.Listing.CategoryPath, " / "),
		Brandless: p.Brandless(),
	}
	if p.HasQuantity {
		ol.Quantity = p.Quantity.String()
	}
	return ol
}

func (ix *CandidateIndex) oracleRequest(query *Profile, candidates []models.MatchCandidate, limit int) OracleRequest {
	req := OracleRequest{Query: oracleListing(query)}
	for i, c := range candidates {
		if i >= limit {
			break
		}
		p, ok := ix.Profile(c.Listing.ID)
		if !ok {
			continue
		}
		req.Candidates = append(req.Candidates, OracleCandidate{
			OracleListing: oracleListing(p),
			LocalScore:    c.Score,
			Reasons:       c.Reasons,
			SourceCount:   c.SourceCount,
		})
	}
	return req
}
