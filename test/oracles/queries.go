package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_one_response_per_member",
			SQL: `SELECT ticket_id, member_code, COUNT(*) FROM responses
                  GROUP BY ticket_id, member_code HAVING COUNT(*) > 1`,
		},
		{
			Name: "O2_audit_seq_monotonic",
			SQL: `WITH seqs AS (
                      SELECT ticket_id, seq,
                             LAG(seq) OVER (PARTITION BY ticket_id ORDER BY seq) AS prev
                      FROM audit_entries)
                  SELECT * FROM seqs WHERE prev IS NOT NULL AND seq <= prev`,
		},
		{
			Name: "O3_responses_in_requires_full_coverage",
			SQL: `SELECT t.id, jsonb_array_length(t.expected_members) AS expected,
                         (SELECT COUNT(*) FROM responses r WHERE r.ticket_id = t.id) AS received
                  FROM tickets t
                  WHERE t.status = 'responses_in'
                    AND jsonb_array_length(t.expected_members) > 0
                    AND (SELECT COUNT(*) FROM responses r WHERE r.ticket_id = t.id)
                        < jsonb_array_length(t.expected_members)`,
		},
		{
			Name: "O4_in_progress_means_partial",
			SQL: `SELECT t.id FROM tickets t
                  WHERE t.status = 'in_progress'
                    AND jsonb_array_length(t.expected_members) > 0
                    AND (SELECT COUNT(*) FROM responses r WHERE r.ticket_id = t.id)
                        >= jsonb_array_length(t.expected_members)`,
		},
		{
			Name: "O5_legacy_summary_consistent",
			SQL: `SELECT t.id FROM tickets t
                  WHERE t.legacy_response_status = 'positive'
                    AND EXISTS (SELECT 1 FROM responses r
                                WHERE r.ticket_id = t.id AND r.status = 'not_clear')`,
		},
		{
			Name: "O6_responder_always_expected",
			SQL: `SELECT r.ticket_id, r.member_code FROM responses r
                  JOIN tickets t ON t.id = r.ticket_id
                  WHERE NOT t.expected_members @> jsonb_build_array(jsonb_build_object('code', r.member_code))`,
		},
		{
			Name: "O7_no_transition_out_of_terminal",
			SQL: `SELECT id, ticket_id, from_status, to_status FROM audit_entries
                  WHERE from_status IN ('ready_to_dig', 'cancelled', 'expired')`,
		},
		{
			Name: "O8_expired_only_after_lapse",
			SQL: `SELECT id FROM tickets
                  WHERE status = 'expired'
                    AND (expires_at IS NULL OR expires_at > now())`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
