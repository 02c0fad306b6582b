package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strconv"

	"github.com/Sternrassler/cps-audit/pkg/enrollment"
)

// enrollmentList is the subset of the CPS enrollment listing the audit needs.
type enrollmentList struct {
	Enrollments []struct {
		Location string `json:"location"`
	} `json:"enrollments"`
}

// ListEnrollments returns the IDs of every enrollment on a contract, in the
// order CPS lists them.
func (c *Client) ListEnrollments(ctx context.Context, contractID string) ([]enrollment.ID, error) {
	if contractID == "" {
		return nil, fmt.Errorf("%w: contract id is required", ErrInvalidConfig)
	}

	query := url.Values{"contractId": []string{contractID}}
	resp, body, err := c.get(ctx, endpointEnrollments, "/cps/v2/enrollments", query, acceptEnrollments)
	if err != nil {
		return nil, fmt.Errorf("list enrollments for %s: %w", contractID, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list enrollments for %s: %w", contractID, c.newCPSError(resp, body))
	}

	var list enrollmentList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("decode enrollment list for %s: %w", contractID, err)
	}

	ids := make([]enrollment.ID, 0, len(list.Enrollments))
	for _, e := range list.Enrollments {
		id, err := idFromLocation(e.Location)
		if err != nil {
			return nil, fmt.Errorf("enrollment list for %s: %w", contractID, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ListContracts returns the top-level contract IDs visible to the account.
func (c *Client) ListContracts(ctx context.Context) ([]string, error) {
	query := url.Values{"depth": []string{"TOP"}}
	resp, body, err := c.get(ctx, endpointContracts, "/contract-api/v1/contracts/identifiers", query, acceptJSON)
	if err != nil {
		return nil, fmt.Errorf("list contracts: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list contracts: %w", c.newCPSError(resp, body))
	}

	var contracts []string
	if err := json.Unmarshal(body, &contracts); err != nil {
		return nil, fmt.Errorf("decode contract list: %w", err)
	}
	return contracts, nil
}

// Contracts builds the audit input: one Contract per contract ID holding its
// enrollment IDs. With no IDs given, every top-level contract is used.
func (c *Client) Contracts(ctx context.Context, contractIDs ...string) ([]enrollment.Contract, error) {
	if len(contractIDs) == 0 {
		var err error
		if contractIDs, err = c.ListContracts(ctx); err != nil {
			return nil, err
		}
	}

	contracts := make([]enrollment.Contract, 0, len(contractIDs))
	for _, id := range contractIDs {
		ids, err := c.ListEnrollments(ctx, id)
		if err != nil {
			return nil, err
		}
		c.logger.Info().
			Str("contract", id).
			Int("enrollments", len(ids)).
			Msg("Collected enrollments")
		contracts = append(contracts, enrollment.Contract{ID: id, IDs: ids})
	}
	return contracts, nil
}

// idFromLocation parses "/cps/v2/enrollments/{id}".
func idFromLocation(location string) (enrollment.ID, error) {
	n, err := strconv.ParseInt(path.Base(location), 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid enrollment location %q", location)
	}
	return enrollment.ID(n), nil
}
