package gormrepository

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"movers/internal/models"
	"movers/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// --- catalog ----------------------------------------------------------------

func (s *Store) UpsertMarketsTx(ctx context.Context, tx *gorm.DB, items []models.Market) error {
	if len(items) == 0 {
		return nil
	}
	return createInBatches(tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "provider"}, {Name: "market_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"title",
			"raw_category",
			"normalized_category",
			"status",
			"metadata",
			"updated_at",
		}),
	}), items, 200)
}

func (s *Store) UpsertOutcomesTx(ctx context.Context, tx *gorm.DB, items []models.Outcome) error {
	if len(items) == 0 {
		return nil
	}
	return createInBatches(tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider"}, {Name: "market_id"}, {Name: "outcome_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"label", "updated_at"}),
	}), items, 200)
}

func (s *Store) UpsertSnapshotsTx(ctx context.Context, tx *gorm.DB, items []models.Snapshot) error {
	if len(items) == 0 {
		return nil
	}
	return createInBatches(tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "ts_minute"}, {Name: "provider"}, {Name: "market_id"}, {Name: "outcome_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"probability",
			"spread_pp",
			"volume_24h_usd",
			"liquidity_usd",
			"outcome_label",
			"title",
			"normalized_category",
		}),
	}), items, 200)
}

func (s *Store) ListMarkets(ctx context.Context, params repository.ListMarketsParams) ([]models.Market, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.Market{})
	if params.Provider != nil && strings.TrimSpace(*params.Provider) != "" {
		query = query.Where("provider = ?", strings.TrimSpace(*params.Provider))
	}
	if params.Category != nil && strings.TrimSpace(*params.Category) != "" {
		query = query.Where("normalized_category = ?", strings.TrimSpace(*params.Category))
	}
	if strings.TrimSpace(params.OrderBy) == "" {
		query = query.Order("provider asc, market_id asc")
	} else {
		query = applyOrder(query, params.OrderBy, params.Asc, "market_id")
	}
	limit := normalizeLimit(params.Limit, 500)
	offset := normalizeOffset(params.Offset)
	var items []models.Market
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountMarkets(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Market{}).Count(&n).Error
	return n, err
}

// --- tick history -----------------------------------------------------------

func (s *Store) ListSnapshotsAt(ctx context.Context, tsMinute time.Time) ([]models.Snapshot, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Snapshot
	err := s.db.WithContext(ctx).
		Where("ts_minute = ?", tsMinute).
		Order("provider asc, market_id asc, outcome_id asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// ListBaselineSnapshots returns, for every outcome that has any snapshot at
// or before the given minute, the most recent such snapshot.
func (s *Store) ListBaselineSnapshots(ctx context.Context, atOrBefore time.Time) ([]models.Snapshot, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Snapshot
	err := s.db.WithContext(ctx).Raw(`
		SELECT DISTINCT ON (provider, market_id, outcome_id) *
		FROM snapshots
		WHERE ts_minute <= ?
		ORDER BY provider, market_id, outcome_id, ts_minute DESC
	`, atOrBefore).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountSnapshotsSince(ctx context.Context, provider, marketID, outcomeID string, since time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var n int64
	err := s.db.WithContext(ctx).
		Model(&models.Snapshot{}).
		Where("provider = ?", provider).
		Where("market_id = ?", marketID).
		Where("outcome_id = ?", outcomeID).
		Where("ts_minute >= ?", since).
		Count(&n).Error
	return n, err
}

func (s *Store) LatestSnapshotMinute(ctx context.Context) (*time.Time, error) {
	return s.latestMinute(ctx, "snapshots")
}

func (s *Store) DeleteSnapshotsBefore(ctx context.Context, before time.Time) (int64, error) {
	if s == nil || s.db == nil || before.IsZero() {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Where("ts_minute < ?", before).Delete(&models.Snapshot{})
	return res.RowsAffected, res.Error
}

// --- deltas -----------------------------------------------------------------

func (s *Store) UpsertDeltas(ctx context.Context, items []models.Delta) error {
	if s == nil || s.db == nil || len(items) == 0 {
		return nil
	}
	return createInBatches(s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "ts_minute"}, {Name: "provider"}, {Name: "market_id"}, {Name: "outcome_id"},
		},
		DoUpdates: clause.AssignmentColumns(deltaColumns()),
	}), items, 200)
}

func (s *Store) ListDeltasAt(ctx context.Context, tsMinute time.Time) ([]models.Delta, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Delta
	err := s.db.WithContext(ctx).
		Where("ts_minute = ?", tsMinute).
		Order("provider asc, market_id asc, outcome_id asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) LatestDeltaMinute(ctx context.Context) (*time.Time, error) {
	return s.latestMinute(ctx, "deltas")
}

func (s *Store) DeleteDeltasBefore(ctx context.Context, before time.Time) (int64, error) {
	if s == nil || s.db == nil || before.IsZero() {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Where("ts_minute < ?", before).Delete(&models.Delta{})
	return res.RowsAffected, res.Error
}

// --- classifications --------------------------------------------------------

func (s *Store) UpsertClassifications(ctx context.Context, items []models.Classification) error {
	if s == nil || s.db == nil || len(items) == 0 {
		return nil
	}
	return createInBatches(s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "ts_minute"}, {Name: "provider"}, {Name: "market_id"}, {Name: "outcome_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"opaque_score",
			"exogenous_score",
			"label",
			"reason_tags",
			"model_version",
		}),
	}), items, 200)
}

func (s *Store) LatestClassificationMinute(ctx context.Context) (*time.Time, error) {
	return s.latestMinute(ctx, "classifications")
}

func (s *Store) DeleteClassificationsBefore(ctx context.Context, before time.Time) (int64, error) {
	if s == nil || s.db == nil || before.IsZero() {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Where("ts_minute < ?", before).Delete(&models.Classification{})
	return res.RowsAffected, res.Error
}

// --- market profiles --------------------------------------------------------

// ListUnprofiledMarkets returns markets that have no profile yet or whose
// profile was produced by a different model version.
func (s *Store) ListUnprofiledMarkets(ctx context.Context, modelVersion string, limit int) ([]models.Market, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	limit = normalizeLimit(limit, 600)
	var items []models.Market
	err := s.db.WithContext(ctx).
		Table("markets AS m").
		Select("m.*").
		Joins("LEFT JOIN market_profiles AS p ON p.provider = m.provider AND p.market_id = m.market_id").
		Where("p.market_id IS NULL OR p.model_version <> ?", modelVersion).
		Order("m.provider ASC, m.market_id ASC").
		Limit(limit).
		Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) UpsertMarketProfiles(ctx context.Context, items []models.MarketProfile) error {
	if s == nil || s.db == nil || len(items) == 0 {
		return nil
	}
	return createInBatches(s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "provider"}, {Name: "market_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"anchor_type",
			"insider_possible",
			"confidence",
			"model_version",
			"updated_at",
		}),
	}), items, 200)
}

func (s *Store) GetMarketProfile(ctx context.Context, provider, marketID string) (*models.MarketProfile, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.MarketProfile
	err := s.db.WithContext(ctx).
		Model(&models.MarketProfile{}).
		Where("provider = ?", provider).
		Where("market_id = ?", marketID).
		First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListMarketProfiles(ctx context.Context, keys []repository.MarketKey) ([]models.MarketProfile, error) {
	if s == nil || s.db == nil || len(keys) == 0 {
		return nil, nil
	}
	var items []models.MarketProfile
	err := s.db.WithContext(ctx).
		Model(&models.MarketProfile{}).
		Where("(provider, market_id) IN ?", marketKeyTuples(keys)).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// --- movers -----------------------------------------------------------------

const moverRowSelect = `
	d.ts_minute AS ts_minute,
	d.provider AS provider,
	d.market_id AS market_id,
	d.outcome_id AS outcome_id,
	s.outcome_label AS outcome_label,
	s.title AS title,
	s.normalized_category AS normalized_category,
	m.metadata AS market_metadata,
	s.probability AS probability,
	s.spread_pp AS spread_pp,
	s.volume_24h_usd AS volume_24h_usd,
	s.liquidity_usd AS liquidity_usd,
	d.delta_1m AS delta_1m,
	d.delta_5m AS delta_5m,
	d.delta_10m AS delta_10m,
	d.delta_30m AS delta_30m,
	d.delta_1h AS delta_1h,
	d.delta_6h AS delta_6h,
	d.delta_12h AS delta_12h,
	d.delta_24h AS delta_24h,
	COALESCE(c.opaque_score, 0) AS opaque_score,
	COALESCE(c.exogenous_score, 0) AS exogenous_score,
	COALESCE(c.label, '') AS label,
	c.reason_tags AS reason_tags`

func (s *Store) ListMoverMarkets(ctx context.Context, params repository.ListMoversParams) ([]repository.MoverMarketKey, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query, col, err := s.moversQuery(ctx, params)
	if err != nil {
		return nil, err
	}
	agg, dir := "MAX(d."+col+")", "DESC"
	if params.Asc {
		agg, dir = "MIN(d."+col+")", "ASC"
	}
	limit := normalizeLimit(params.Limit, 50)
	offset := normalizeOffset(params.Offset)
	var keys []repository.MoverMarketKey
	err = query.
		Select("d.provider AS provider, d.market_id AS market_id, " + agg + " AS lead_delta").
		Group("d.provider, d.market_id").
		Order("lead_delta " + dir + " NULLS LAST, d.provider ASC, d.market_id ASC").
		Limit(limit).
		Offset(offset).
		Scan(&keys).Error
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *Store) CountMoverMarkets(ctx context.Context, params repository.ListMoversParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	query, _, err := s.moversQuery(ctx, params)
	if err != nil {
		return 0, err
	}
	var n int64
	err = query.Select("COUNT(DISTINCT (d.provider, d.market_id))").Scan(&n).Error
	return n, err
}

func (s *Store) ListMoverRows(ctx context.Context, params repository.ListMoverRowsParams) ([]repository.MoverRow, error) {
	if s == nil || s.db == nil || len(params.Keys) == 0 {
		return nil, nil
	}
	w, ok := models.WindowByKey(params.Window)
	if !ok {
		return nil, repository.ErrUnknownWindow
	}
	col := models.DeltaColumn(w.Key)
	query := s.db.WithContext(ctx).
		Table("deltas AS d").
		Select(moverRowSelect).
		Joins(snapshotJoin).
		Joins(marketJoin).
		Joins(classificationJoin).
		Where("d.ts_minute = ?", params.TSMinute).
		Where("(d.provider, d.market_id) IN ?", marketKeyTuples(params.Keys))
	if params.MinLiquidityUSD != nil {
		query = query.Where("s.liquidity_usd >= ?", *params.MinLiquidityUSD)
	}
	if params.MaxSpreadPP != nil {
		query = query.Where("s.spread_pp <= ?", *params.MaxSpreadPP)
	}
	var rows []repository.MoverRow
	err := query.
		Order("ABS(d." + col + ") DESC NULLS LAST, d.outcome_id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

const snapshotJoin = `JOIN snapshots AS s
	ON s.ts_minute = d.ts_minute
	AND s.provider = d.provider
	AND s.market_id = d.market_id
	AND s.outcome_id = d.outcome_id`

const marketJoin = `JOIN markets AS m
	ON m.provider = d.provider
	AND m.market_id = d.market_id`

const classificationJoin = `LEFT JOIN classifications AS c
	ON c.ts_minute = d.ts_minute
	AND c.provider = d.provider
	AND c.market_id = d.market_id
	AND c.outcome_id = d.outcome_id`

func (s *Store) moversQuery(ctx context.Context, params repository.ListMoversParams) (*gorm.DB, string, error) {
	w, ok := models.WindowByKey(params.Window)
	if !ok {
		return nil, "", repository.ErrUnknownWindow
	}
	col := models.DeltaColumn(w.Key)

	query := s.db.WithContext(ctx).
		Table("deltas AS d").
		Joins(snapshotJoin).
		Joins(marketJoin).
		Joins(classificationJoin).
		Where("d.ts_minute = ?", params.TSMinute)

	if providers := cleanStrings(params.Providers); len(providers) > 0 {
		query = query.Where("d.provider IN ?", providers)
	}
	if params.Category != nil && strings.TrimSpace(*params.Category) != "" {
		query = query.Where("m.normalized_category = ?", strings.TrimSpace(*params.Category))
	}
	if params.Label != nil && strings.TrimSpace(*params.Label) != "" {
		query = query.Where("c.label = ?", strings.TrimSpace(*params.Label))
	}
	if params.MinLiquidityUSD != nil {
		query = query.Where("s.liquidity_usd >= ?", *params.MinLiquidityUSD)
	}
	if params.MaxSpreadPP != nil {
		query = query.Where("s.spread_pp <= ?", *params.MaxSpreadPP)
	}

	return query, col, nil
}

// --- alerts -----------------------------------------------------------------

func (s *Store) ListAlertCandidates(ctx context.Context, tsMinute time.Time, params repository.AlertScanParams) ([]repository.MoverRow, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	scanCap := normalizeLimit(params.Cap, 500)

	query := s.db.WithContext(ctx).
		Table("deltas AS d").
		Select(moverRowSelect).
		Joins(snapshotJoin).
		Joins(marketJoin).
		Joins(classificationJoin).
		Where("d.ts_minute = ?", tsMinute).
		Where("c.label = ?", params.Label)
	if params.MinLiquidityUSD > 0 {
		query = query.Where("s.liquidity_usd >= ?", params.MinLiquidityUSD)
	}
	if params.MaxSpreadPP > 0 {
		query = query.Where("s.spread_pp <= ?", params.MaxSpreadPP)
	}

	var rows []repository.MoverRow
	err := query.
		Order("ABS(COALESCE(d.delta_1m, 0)) DESC, d.provider ASC, d.market_id ASC, d.outcome_id ASC").
		Limit(scanCap).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *Store) GetAlertState(ctx context.Context, signature string) (*models.AlertState, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return nil, nil
	}
	var item models.AlertState
	err := s.db.WithContext(ctx).
		Model(&models.AlertState{}).
		Where("signature = ?", signature).
		First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) UpsertAlertState(ctx context.Context, item *models.AlertState) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if strings.TrimSpace(item.Signature) == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "signature"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_sent_at"}),
	}).Create(item).Error
}

// --- helpers ----------------------------------------------------------------

func (s *Store) latestMinute(ctx context.Context, table string) (*time.Time, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var row struct {
		Latest *time.Time
	}
	err := s.db.WithContext(ctx).
		Table(table).
		Select("MAX(ts_minute) AS latest").
		Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.Latest == nil || row.Latest.IsZero() {
		return nil, nil
	}
	return row.Latest, nil
}

func deltaColumns() []string {
	cols := make([]string, 0, len(models.Windows()))
	for _, w := range models.Windows() {
		cols = append(cols, models.DeltaColumn(w.Key))
	}
	return cols
}

func marketKeyTuples(keys []repository.MarketKey) [][]any {
	tuples := make([][]any, 0, len(keys))
	for _, k := range keys {
		tuples = append(tuples, []any{k.Provider, k.MarketID})
	}
	return tuples
}

func applyOrder(query *gorm.DB, orderBy string, asc *bool, fallback string) *gorm.DB {
	column := strings.TrimSpace(orderBy)
	if column == "" {
		column = fallback
	}
	direction := "desc"
	if asc != nil && *asc {
		direction = "asc"
	}
	return query.Order(column + " " + direction)
}

func createInBatches[T any](db *gorm.DB, items []T, batchSize int) error {
	if len(items) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = 200
	}
	for i := 0; i < len(items); i += batchSize {
		end := i + batchSize
		if end > len(items) {
			end = len(items)
		}
		if err := db.CreateInBatches(items[i:end], batchSize).Error; err != nil {
			return err
		}
	}
	return nil
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 1000 {
		return 1000
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	seen := map[string]struct{}{}
	for _, raw := range items {
		val := strings.TrimSpace(raw)
		if val == "" {
			continue
		}
		if _, ok := seen[val]; ok {
			continue
		}
		seen[val] = struct{}{}
		out = append(out, val)
	}
	return out
}
