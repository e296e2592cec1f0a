// Package vectorstore is the analytical-engine adapter for HNSW cosine
// similarity queries over the attack and safe pattern corpora.
package vectorstore

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sentra-sec/sentra/pkg/config"
	"github.com/sentra-sec/sentra/pkg/models"
)

// snippetLen bounds the pattern text echoed back per row; full pattern
// bodies never leave the warehouse.
const snippetLen = 80

// Client issues similarity queries over the engine's HTTP SQL interface.
// One shared instance per process; the transport pools keep-alive sockets.
type Client struct {
	baseURL     string
	user        string
	password    string
	database    string
	attackTable string
	safeTable   string
	topK        int
	httpClient  *http.Client
}

// New builds the client from configuration. Credentials travel in headers,
// never in the URL or logs.
func New(cfg config.VectorStoreConfig) *Client {
	maxSockets := cfg.MaxSockets
	if maxSockets <= 0 {
		maxSockets = 32
	}
	return &Client{
		baseURL:     fmt.Sprintf("http://%s:%d/", cfg.Host, cfg.Port),
		user:        cfg.User,
		password:    cfg.Password,
		database:    cfg.Database,
		attackTable: cfg.AttackTable,
		safeTable:   cfg.SafeTable,
		topK:        cfg.TopK,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        maxSockets,
				MaxIdleConnsPerHost: maxSockets,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// row mirrors one JSONEachRow line of the similarity query.
type row struct {
	TableType      string  `json:"table_type"`
	PatternID      string  `json:"pattern_id"`
	Category       string  `json:"category"`
	Subcategory    string  `json:"subcategory"`
	PatternSnippet string  `json:"pattern_snippet"`
	Similarity     float64 `json:"similarity"`
}

// QueryBoth runs the dual top-K search in a single round-trip and returns
// the union sorted by similarity descending within each side.
func (c *Client) QueryBoth(ctx context.Context, embedding []float32) (attack, safe []models.SemanticMatch, err error) {
	sql := c.buildUnionSQL(embedding)
	rows, err := c.execute(ctx, sql)
	if err != nil {
		return nil, nil, err
	}
	return splitRows(rows)
}

// QueryAttackOnly is the degraded fallback used when the union query fails
// transiently: attack-side scoring alone raises false-positive risk, so the
// caller must flag the result.
func (c *Client) QueryAttackOnly(ctx context.Context, embedding []float32) ([]models.SemanticMatch, error) {
	sql := c.buildSideSQL(models.SideAttack, c.attackTable, embedding) + " FORMAT JSONEachRow"
	rows, err := c.execute(ctx, sql)
	if err != nil {
		return nil, err
	}
	attack, _, err := splitRows(rows)
	return attack, err
}

// Ping verifies engine reachability (health probe).
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader("SELECT 1"))
	if err != nil {
		return fmt.Errorf("failed to build ping request: %w", err)
	}
	if c.user != "" {
		req.SetBasicAuth(c.user, c.password)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("vector store unreachable: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("vector store health probe returned %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) buildUnionSQL(embedding []float32) string {
	var b strings.Builder
	b.WriteString("SELECT * FROM (")
	b.WriteString(c.buildSideSQL(models.SideAttack, c.attackTable, embedding))
	b.WriteString(") UNION ALL SELECT * FROM (")
	b.WriteString(c.buildSideSQL(models.SideSafe, c.safeTable, embedding))
	b.WriteString(") FORMAT JSONEachRow")
	return b.String()
}

// buildSideSQL renders one side's top-K similarity search. The embedding is
// inlined as a float literal array: the HTTP interface has no parameter
// binding for arrays, and every value is numeric so no quoting applies.
func (c *Client) buildSideSQL(side models.CorpusSide, table string, embedding []float32) string {
	var b strings.Builder
	b.WriteString("SELECT '")
	b.WriteString(string(side))
	b.WriteString("' AS table_type, pattern_id, category, subcategory, substring(pattern_text, 1, ")
	b.WriteString(strconv.Itoa(snippetLen))
	b.WriteString(") AS pattern_snippet, 1 - cosineDistance(embedding, ")
	writeVector(&b, embedding)
	b.WriteString(") AS similarity FROM ")
	b.WriteString(c.database)
	b.WriteString(".")
	b.WriteString(table)
	b.WriteString(" ORDER BY similarity DESC LIMIT ")
	b.WriteString(strconv.Itoa(c.topK))
	return b.String()
}

func writeVector(b *strings.Builder, v []float32) {
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(x), 'g', -1, 32))
	}
	b.WriteByte(']')
}

// execute POSTs the SQL body and parses JSONEachRow lines.
func (c *Client) execute(ctx context.Context, sql string) ([]row, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid vector store URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), strings.NewReader(sql))
	if err != nil {
		return nil, fmt.Errorf("failed to build vector store request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")
	if c.user != "" {
		req.SetBasicAuth(c.user, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vector store unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("vector store returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var rows []row
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var r row
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			return nil, fmt.Errorf("malformed vector store row: %w", err)
		}
		rows = append(rows, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed reading vector store response: %w", err)
	}
	return rows, nil
}

// splitRows partitions rows by corpus side and sorts each side by
// similarity descending.
func splitRows(rows []row) (attack, safe []models.SemanticMatch, err error) {
	for _, r := range rows {
		m := models.SemanticMatch{
			PatternID:   r.PatternID,
			Side:        models.CorpusSide(r.TableType),
			Category:    r.Category,
			Subcategory: r.Subcategory,
			Snippet:     r.PatternSnippet,
			Similarity:  r.Similarity,
		}
		switch m.Side {
		case models.SideAttack:
			attack = append(attack, m)
		case models.SideSafe:
			safe = append(safe, m)
		default:
			return nil, nil, fmt.Errorf("unknown table_type %q", r.TableType)
		}
	}
	bySimilarity := func(ms []models.SemanticMatch) {
		sort.Slice(ms, func(i, j int) bool { return ms[i].Similarity > ms[j].Similarity })
	}
	bySimilarity(attack)
	bySimilarity(safe)
	return attack, safe, nil
}
