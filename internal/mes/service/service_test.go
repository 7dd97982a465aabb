package service

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Hsinwei-29/mes/internal/mes/entity"
	"github.com/Hsinwei-29/mes/internal/mes/extractor"
	"github.com/Hsinwei-29/mes/internal/mes/repository"
	"github.com/Hsinwei-29/mes/internal/mes/testutil"
	"github.com/Hsinwei-29/mes/internal/mes/workbook"
	"go.uber.org/zap"
)

type countingObserver struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (o *countingObserver) ObserveMutation(op, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.outcomes == nil {
		o.outcomes = make(map[string]int)
	}
	o.outcomes[op+":"+outcome]++
}

type fixture struct {
	dir      string
	casting  string
	svc      *Services
	observer *countingObserver
}

func newFixture(t *testing.T, inv map[string][]testutil.InvRow) *fixture {
	t.Helper()
	dir := t.TempDir()
	partTypes := entity.DefaultPartTypes()

	casting := testutil.WriteInventory(t, dir, partTypes, inv)
	picking := testutil.WritePicking(t, dir, []testutil.PickRow{
		{Order: "ORD-1", Material: "A100000001-01", Demand: 5, Picked: 1, Pending: 4, Description: "底座 鑄件", RequiredBy: "2026-03-01"},
		{Order: "ORD-2", Material: "B100000001-01", Demand: 2, Picked: 2, Pending: 0, Description: "工作台"},
	})
	workOrders := testutil.WriteWorkOrders(t, dir, []string{"一廠", "半品"}, map[string][]testutil.WORow{
		"一廠": {
			{ID: 1000010001, Order: "ORD-1", Customer: "甲", Start: "2026-02-01", End: "2026-04-01"},
			{ID: 1000010002, Order: "ORD-2", Customer: "乙", Start: "2025-01-01", End: "2025-02-01"},
		},
	})

	sources := NewSources(SourceOptions{
		CastingFile:     casting,
		WorkOrderFile:   workOrders,
		PickingFile:     picking,
		PartTypes:       partTypes,
		WorkOrderFilter: extractor.DefaultWorkOrderFilter(),
	}, nil, zap.NewNop())

	observer := &countingObserver{}
	svc := NewServices(Deps{
		Sources:   sources,
		AuditFile: repository.NewAuditFileRepository(filepath.Join(dir, "audit_log.json"), 0, nil),
		Observer:  observer,
	})
	return &fixture{dir: dir, casting: casting, svc: svc, observer: observer}
}

func baseRows() map[string][]testutil.InvRow {
	return map[string][]testutil.InvRow{
		"底座": {
			{PartNumber: "A1", Model: "X", Qty: map[string]int{"素材": 5, "製程四": 0}},
			{PartNumber: "A2", Model: "Y", Qty: map[string]int{"成品研磨": 7}},
			{PartNumber: "A3", Model: "Z", Qty: map[string]int{"成品研磨": 0}},
			{PartNumber: "A4", Model: "W", Qty: map[string]int{"成品研磨": 5}},
		},
		"工作台": {
			{PartNumber: "B100000001", Model: "X", Qty: map[string]int{"成品": 1}},
		},
	}
}

func row(t *testing.T, f *fixture, partType, pn string) entity.InventoryRow {
	t.Helper()
	d, err := f.svc.Inventory.PartDetails(partType, false)
	if err != nil {
		t.Fatalf("part details: %v", err)
	}
	for _, r := range d.Rows {
		if r.PartNumber == pn {
			return r
		}
	}
	t.Fatalf("row %s not found in %s", pn, partType)
	return entity.InventoryRow{}
}

func assertTotals(t *testing.T, f *fixture) {
	t.Helper()
	for _, p := range f.svc.Sources.Inventory.Get().Parts {
		for _, r := range p.Rows {
			sum := 0
			for _, s := range r.Stages {
				sum += s.Qty
			}
			if sum != r.Total {
				t.Errorf("%s/%s total %d != stage sum %d", p.Config.Name, r.PartNumber, r.Total, sum)
			}
		}
	}
}

func TestUpdateFieldRecomputesTotal(t *testing.T) {
	f := newFixture(t, baseRows())
	ctx := context.Background()

	res, err := f.svc.Mutation.UpdateField(ctx, UpdateRequest{
		PartType: "底座", ItemID: "A1", Field: "製程四", Value: 3, Actor: "admin",
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if res.OldValue != 0 || res.NewTotal != 8 || res.ItemID != "A1" || res.Created {
		t.Errorf("unexpected result %+v", res)
	}

	log, err := f.svc.Audit.Log(ctx, "底座", 0)
	if err != nil || len(log) != 1 {
		t.Fatalf("expected one audit entry, got %v (%v)", log, err)
	}
	if log[0].OldValue != 0 || log[0].NewValue != 3 || log[0].User != "admin" || log[0].Field != "製程四" {
		t.Errorf("unexpected audit entry %+v", log[0])
	}

	r := row(t, f, "base", "A1")
	if r.Total != 8 || r.Qty("製程四") != 3 {
		t.Errorf("cache not refreshed after write: %+v", r)
	}

	sheet, err := workbook.ReadSheet(f.casting, 1, "")
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if got := sheet.Cell(1, 7); got != "8" {
		t.Errorf("total column on disk = %q, want 8", got)
	}
	assertTotals(t, f)
	if f.observer.outcomes["update_field:ok"] != 1 {
		t.Errorf("observer not notified: %v", f.observer.outcomes)
	}
}

func TestStockOutInsufficientLeavesRow(t *testing.T) {
	f := newFixture(t, baseRows())
	before, err := os.ReadFile(f.casting)
	if err != nil {
		t.Fatal(err)
	}

	_, err = f.svc.Mutation.StockOut(context.Background(), StockRequest{
		PartType: "底座", PartNumber: "A2", Quantity: 10, Actor: "admin",
	})
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	after, _ := os.ReadFile(f.casting)
	if !bytes.Equal(before, after) {
		t.Errorf("workbook modified after rejected stock-out")
	}
	if r := row(t, f, "底座", "A2"); r.Qty("成品研磨") != 7 {
		t.Errorf("row changed: %+v", r)
	}
	if log, _ := f.svc.Audit.Log(context.Background(), "底座", 0); len(log) != 0 {
		t.Errorf("rejected stock-out must not be audited")
	}
	if f.observer.outcomes["stock_out:insufficient_stock"] != 1 {
		t.Errorf("unexpected outcomes %v", f.observer.outcomes)
	}
}

func TestUpdateFieldAppendsRowForUnknownModel(t *testing.T) {
	f := newFixture(t, baseRows())
	ctx := context.Background()

	res, err := f.svc.Mutation.UpdateField(ctx, UpdateRequest{
		PartType: "底座", ItemID: "ZZ-404", ModelName: "LV-2000", Field: "素材", Value: 4, Actor: "admin",
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !res.Created || res.ItemID != "LV-2000" || res.NewTotal != 4 {
		t.Errorf("unexpected result %+v", res)
	}

	r := row(t, f, "底座", entity.PlaceholderPartNumber)
	if r.ModelName != "LV-2000" || r.Total != 4 {
		t.Errorf("appended row not found: %+v", r)
	}

	again, err := f.svc.Mutation.UpdateField(ctx, UpdateRequest{
		PartType: "底座", ModelName: "LV-2000", Field: "成品研磨", Value: 2, Actor: "admin",
	})
	if err != nil {
		t.Fatalf("second update: %v", err)
	}
	if again.Created || again.NewTotal != 6 {
		t.Errorf("lookup by model should hit the appended row: %+v", again)
	}

	found := false
	for _, m := range f.svc.Inventory.Catalog() {
		if m.Name == "LV-2000" {
			found = m.Finished["底座"] == 2
		}
	}
	if !found {
		t.Errorf("new model missing from catalog")
	}
	assertTotals(t, f)
}

func TestUpdateFieldValidation(t *testing.T) {
	f := newFixture(t, baseRows())
	ctx := context.Background()

	tests := []struct {
		name string
		req  UpdateRequest
		want error
	}{
		{"unknown part type", UpdateRequest{PartType: "馬達", ItemID: "A1", Field: "素材"}, ErrValidation},
		{"unknown field", UpdateRequest{PartType: "底座", ItemID: "A1", Field: "成品"}, ErrValidation},
		{"total field", UpdateRequest{PartType: "底座", ItemID: "A1", Field: "總數", Value: 1}, ErrValidation},
		{"negative", UpdateRequest{PartType: "底座", ItemID: "A1", Field: "素材", Value: -1}, ErrValidation},
		{"no target", UpdateRequest{PartType: "底座", Field: "素材", Value: 1}, ErrValidation},
		{"not found", UpdateRequest{PartType: "底座", ItemID: "NOPE", Field: "素材", Value: 1}, ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.Mutation.UpdateField(ctx, tt.req); !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestStockInAddsToRawStage(t *testing.T) {
	f := newFixture(t, baseRows())
	res, err := f.svc.Mutation.StockIn(context.Background(), StockRequest{
		PartType: "base", PartNumber: "A2", Quantity: 6, Actor: "op",
	})
	if err != nil {
		t.Fatalf("stock in: %v", err)
	}
	if res.Stage != "素材" || len(res.Moves) != 1 || res.Moves[0].NewValue != 6 || res.Moves[0].NewTotal != 13 {
		t.Errorf("unexpected result %+v", res)
	}
	if r := row(t, f, "底座", "A2"); r.Qty("素材") != 6 || r.Total != 13 {
		t.Errorf("unexpected row %+v", r)
	}

	if _, err := f.svc.Mutation.StockIn(context.Background(), StockRequest{PartType: "底座", Quantity: 0}); !errors.Is(err, ErrValidation) {
		t.Errorf("zero quantity should fail validation, got %v", err)
	}
}

func TestStockOutGreedyAcrossRows(t *testing.T) {
	f := newFixture(t, baseRows())
	ctx := context.Background()

	res, err := f.svc.Mutation.StockOut(ctx, StockRequest{PartType: "底座", Quantity: 9, Actor: "op"})
	if err != nil {
		t.Fatalf("stock out: %v", err)
	}
	if len(res.Moves) != 2 || res.Moves[0].ItemID != "A2" || res.Moves[0].NewValue != 0 ||
		res.Moves[1].ItemID != "A4" || res.Moves[1].NewValue != 3 {
		t.Errorf("unexpected moves %+v", res.Moves)
	}
	if len(res.Entries) != 2 {
		t.Errorf("expected an audit entry per touched row, got %d", len(res.Entries))
	}

	if _, err := f.svc.Mutation.StockOut(ctx, StockRequest{PartType: "底座", Quantity: 4}); !errors.Is(err, ErrInsufficientStock) {
		t.Errorf("expected insufficient stock, got %v", err)
	}
	if r := row(t, f, "底座", "A4"); r.Qty("成品研磨") != 3 {
		t.Errorf("rejected greedy stock-out must not write: %+v", r)
	}
	assertTotals(t, f)
}

func TestMutationInvalidatesCache(t *testing.T) {
	f := newFixture(t, baseRows())
	memo := f.svc.Sources.Inventory

	f.svc.Inventory.Summary()
	f.svc.Inventory.Summary()
	if memo.Loads() != 1 {
		t.Fatalf("expected one load, got %d", memo.Loads())
	}

	if _, err := f.svc.Mutation.UpdateField(context.Background(), UpdateRequest{
		PartType: "底座", ItemID: "A1", Field: "素材", Value: 6,
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := f.svc.Inventory.Summary()["底座"]; got != 6+7+5 {
		t.Errorf("summary after write = %d", got)
	}
	if memo.Loads() != 2 {
		t.Errorf("expected reload after write, got %d loads", memo.Loads())
	}
}

func TestShortageAndExport(t *testing.T) {
	f := newFixture(t, map[string][]testutil.InvRow{
		"底座": {{PartNumber: "A100000001", Model: "X", Qty: map[string]int{"素材": 1, "成品研磨": 2}}},
	})

	lines := f.svc.Shortage.Lines()
	if len(lines) != 1 {
		t.Fatalf("expected 1 shortage line, got %+v", lines)
	}
	l := lines[0]
	if l.WorkOrderID != "1000010001" || l.Stock != 3 || l.CurrentShortfall != 4 || l.FinalShortfall != 1 || l.Status != entity.StatusShort {
		t.Errorf("unexpected line %+v", l)
	}

	out, err := f.svc.Shortage.ExportTo(filepath.Join(f.dir, "report.xlsx"))
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if inDir, err := f.svc.Shortage.ExportTo(f.dir); err != nil || filepath.Dir(inDir) != f.dir || filepath.Ext(inDir) != ".xlsx" {
		t.Errorf("export into dir = %q, %v", inDir, err)
	}
	sheets, err := workbook.ReadAll(out)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	names := map[string]int{}
	for _, s := range sheets {
		names[s.Name] = len(s.Rows)
	}
	if names[SheetAllLines] != 2 || names[SheetShortage] != 2 || names["底座"] != 2 {
		t.Errorf("unexpected report sheets %v", names)
	}
	if _, ok := names["立柱"]; !ok {
		t.Errorf("every part type should have a sheet: %v", names)
	}
}

func TestOrderBoardAndSupplyDemand(t *testing.T) {
	f := newFixture(t, map[string][]testutil.InvRow{
		"底座": {{PartNumber: "A100000001", Model: "X", Qty: map[string]int{"成品研磨": 2}}},
	})
	f.svc.Orders.now = func() time.Time { return time.Date(2026, 1, 15, 9, 0, 0, 0, time.Local) }

	board := f.svc.Orders.List()
	if board.Stats.Total != 2 || board.Stats.Completed != 1 || board.Stats.InProgress != 1 {
		t.Errorf("unexpected stats %+v", board.Stats)
	}
	if board.Orders[0].ID != "1000010001" || board.Orders[0].Completed {
		t.Errorf("active orders should come first: %+v", board.Orders[0])
	}
	if board.Orders[0].Demand["底座"] != 4 || board.Orders[0].RequiredBy == nil {
		t.Errorf("unexpected order demand %+v", board.Orders[0])
	}
	if board.Demand["底座"] != 4 || board.Demand["工作台"] != 0 {
		t.Errorf("unexpected total demand %v", board.Demand)
	}

	for _, sd := range f.svc.Inventory.SupplyDemand() {
		switch sd.PartType {
		case "底座":
			if sd.Stock != 2 || sd.Demand != 4 || sd.Diff != -2 || sd.Status != SupplyInsufficient {
				t.Errorf("unexpected base supply %+v", sd)
			}
		case "立柱":
			if sd.Status != SupplySufficient {
				t.Errorf("unexpected column supply %+v", sd)
			}
		}
	}
}

// newBoardServices 自定义工单与拨料的服务集合，库存为空
func newBoardServices(t *testing.T, orders []testutil.WORow, picks []testutil.PickRow) *Services {
	t.Helper()
	dir := t.TempDir()
	partTypes := entity.DefaultPartTypes()
	sources := NewSources(SourceOptions{
		CastingFile: testutil.WriteInventory(t, dir, partTypes, map[string][]testutil.InvRow{
			"底座": {{PartNumber: "A100000001", Model: "X"}},
		}),
		WorkOrderFile:   testutil.WriteWorkOrders(t, dir, []string{"一廠"}, map[string][]testutil.WORow{"一廠": orders}),
		PickingFile:     testutil.WritePicking(t, dir, picks),
		PartTypes:       partTypes,
		WorkOrderFilter: extractor.DefaultWorkOrderFilter(),
	}, nil, zap.NewNop())
	svc := NewServices(Deps{
		Sources:   sources,
		AuditFile: repository.NewAuditFileRepository(filepath.Join(dir, "audit_log.json"), 0, nil),
	})
	svc.Orders.now = func() time.Time { return time.Date(2026, 1, 15, 9, 0, 0, 0, time.Local) }
	return svc
}

func TestOrderBoardMissingEndIsNotActive(t *testing.T) {
	svc := newBoardServices(t, []testutil.WORow{
		{ID: 1000010001, Order: "S0", Customer: "甲", Start: "2026-01-01"},
		{ID: 1000010002, Order: "S2", Customer: "乙", Start: "2026-01-01", End: "2026-02-01"},
	}, nil)

	board := svc.Orders.List()
	if board.Stats.Total != 2 || board.Stats.Completed != 1 || board.Stats.InProgress != 1 {
		t.Errorf("order without end date should not count as in progress: %+v", board.Stats)
	}
	if board.Orders[0].ID != "1000010002" || board.Orders[0].Completed {
		t.Errorf("dated active order should come first: %+v", board.Orders[0])
	}
	if last := board.Orders[1]; last.ID != "1000010001" || !last.Completed {
		t.Errorf("order without end date should sort last: %+v", last)
	}
}

func TestSharedOrderIDDemandGoesToFirstWorkOrder(t *testing.T) {
	svc := newBoardServices(t, []testutil.WORow{
		{ID: 1000010001, Order: "S1", Customer: "甲", Start: "2026-02-01", End: "2026-03-01"},
		{ID: 1000010002, Order: "S1", Customer: "甲", Start: "2026-02-05", End: "2026-03-05"},
	}, []testutil.PickRow{
		{Order: "S1", Material: "A100000001-01", Demand: 3, Pending: 3, Description: "底座 鑄件", RequiredBy: "2026-02-10"},
	})

	board := svc.Orders.List()
	demand := map[string]int{}
	for _, o := range board.Orders {
		demand[o.ID] = o.Demand["底座"]
	}
	if demand["1000010001"] != 3 || demand["1000010002"] != 0 || board.Demand["底座"] != 3 {
		t.Errorf("shared order demand should go to the first work order only: %v total=%v", demand, board.Demand)
	}

	res := svc.Shortage.Compute()
	if len(res.Lines) != 1 || res.Lines[0].WorkOrderID != "1000010001" || res.Lines[0].Demand != 3 {
		t.Errorf("unexpected shortage lines %+v", res.Lines)
	}
	if len(res.Diagnostics.SharedOrderIDs) != 1 || res.Diagnostics.SharedOrderIDs[0] != "S1" {
		t.Errorf("unexpected shared order ids %v", res.Diagnostics.SharedOrderIDs)
	}
}

func TestAuditStats(t *testing.T) {
	f := newFixture(t, baseRows())
	ctx := context.Background()
	for _, req := range []UpdateRequest{
		{PartType: "底座", ItemID: "A1", Field: "素材", Value: 1, Actor: "amy"},
		{PartType: "底座", ItemID: "A1", Field: "素材", Value: 2, Actor: "bob"},
		{PartType: "底座", ItemID: "A2", Field: "素材", Value: 3, Actor: "amy"},
	} {
		if _, err := f.svc.Mutation.UpdateField(ctx, req); err != nil {
			t.Fatalf("update: %v", err)
		}
	}

	stats, err := f.svc.Audit.Stats(ctx, "底座")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalEdits != 3 || stats.UniqueItems != 2 || stats.UniqueUsers != 2 || len(stats.RecentActivity) != 3 {
		t.Errorf("unexpected stats %+v", stats)
	}

	f.svc.Audit.now = func() time.Time { return time.Now().Add(8 * 24 * time.Hour) }
	stats, _ = f.svc.Audit.Stats(ctx, "底座")
	if len(stats.RecentActivity) != 0 {
		t.Errorf("entries older than 7 days should not be recent")
	}

	items, _ := f.svc.Audit.ItemLog(ctx, "底座", "A1", 0)
	if len(items) != 2 || items[0].User != "bob" {
		t.Errorf("unexpected item log %+v", items)
	}
}

func TestZeroStockAndSummary(t *testing.T) {
	f := newFixture(t, baseRows())
	zero := f.svc.Inventory.ZeroStock()
	names := map[string]bool{}
	for _, m := range zero {
		names[m.Name] = true
	}
	// X 有工作台成品 1，Y/W 有底座成品
	if !names["Z"] || names["X"] || names["Y"] {
		t.Errorf("unexpected zero stock models %v", names)
	}
	if got := f.svc.Inventory.Summary(); got["底座"] != 17 || got["工作台"] != 1 {
		t.Errorf("unexpected summary %v", got)
	}
	if _, err := f.svc.Inventory.PartDetails("unknown", false); !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
	d, _ := f.svc.Inventory.PartDetails("底座", true)
	if len(d.Rows) != 3 {
		t.Errorf("nonzero filter should drop A3, got %d rows", len(d.Rows))
	}
}
