package exec

import (
	"testing"

	"github.com/cuemby/solidb/pkg/replog"
	"github.com/cuemby/solidb/pkg/storage"
	"github.com/cuemby/solidb/pkg/txn"
	"github.com/cuemby/solidb/pkg/types"
)

func newTestExecutor(t *testing.T) *Executor {
	t.Helper()
	e, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { e.Close() })

	catalog := storage.NewCatalog(e)
	if _, err := catalog.CreateDatabase("app"); err != nil {
		t.Fatalf("CreateDatabase: %v", err)
	}
	documents := storage.NewDocuments(e, catalog, "app", "n1")
	lg, err := replog.Open(e, "n1")
	if err != nil {
		t.Fatalf("replog.Open: %v", err)
	}

	return &Executor{
		Documents: documents,
		Engine:    e,
		Database:  "app",
		Txn:       txn.NewManager(documents, lg),
	}
}

func insertDoc(t *testing.T, ex *Executor, collection string, fields map[string]interface{}) {
	t.Helper()
	obj := types.NewObject()
	for k, v := range fields {
		switch val := v.(type) {
		case string:
			obj.Set(k, types.String(val))
		case int:
			obj.Set(k, types.Int(int64(val)))
		case float64:
			obj.Set(k, types.Float(val))
		}
	}
	if _, err := ex.Documents.Insert(collection, obj); err != nil {
		t.Fatalf("Insert(%s): %v", collection, err)
	}
}

func TestRunScanFilterReturn(t *testing.T) {
	ex := newTestExecutor(t)
	insertDoc(t, ex, "users", map[string]interface{}{"_key": "a", "name": "Alice", "age": 30})
	insertDoc(t, ex, "users", map[string]interface{}{"_key": "b", "name": "Bob", "age": 12})

	res, err := ex.Run(`FOR u IN users FILTER u.age >= 18 RETURN u.name`, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Rows) != 1 || res.Rows[0].AsString() != "Alice" {
		t.Fatalf("unexpected rows: %+v", res.Rows)
	}
}

func TestRunLetAndObjectProjection(t *testing.T) {
	ex := newTestExecutor(t)
	insertDoc(t, ex, "users", map[string]interface{}{"_key": "a", "name": "Alice", "age": 30})

	res, err := ex.Run(`FOR u IN users LET label = CONCAT(u.name, "!") RETURN { name: u.name, label }`, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(res.Rows))
	}
	obj := res.Rows[0].AsObject()
	if v, _ := obj.Get("label"); v.AsString() != "Alice!" {
		t.Fatalf("unexpected label: %+v", v)
	}
}

func TestRunSortAndLimit(t *testing.T) {
	ex := newTestExecutor(t)
	insertDoc(t, ex, "users", map[string]interface{}{"_key": "a", "name": "Alice", "age": 30})
	insertDoc(t, ex, "users", map[string]interface{}{"_key": "b", "name": "Bob", "age": 12})
	insertDoc(t, ex, "users", map[string]interface{}{"_key": "c", "name": "Carl", "age": 45})

	res, err := ex.Run(`FOR u IN users SORT u.age DESC LIMIT 2 RETURN u.name`, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Rows) != 2 || res.Rows[0].AsString() != "Carl" || res.Rows[1].AsString() != "Alice" {
		t.Fatalf("unexpected rows: %+v", res.Rows)
	}
}

func TestRunCollectAggregate(t *testing.T) {
	ex := newTestExecutor(t)
	insertDoc(t, ex, "orders", map[string]interface{}{"_key": "1", "customer": "Alice", "amount": 10})
	insertDoc(t, ex, "orders", map[string]interface{}{"_key": "2", "customer": "Alice", "amount": 5})
	insertDoc(t, ex, "orders", map[string]interface{}{"_key": "3", "customer": "Bob", "amount": 7})

	res, err := ex.Run(`FOR o IN orders COLLECT customer = o.customer AGGREGATE total = SUM(o.amount) SORT customer RETURN { customer, total }`, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(res.Rows))
	}
	first := res.Rows[0].AsObject()
	customer, _ := first.Get("customer")
	total, _ := first.Get("total")
	if customer.AsString() != "Alice" || total.AsInt() != 15 {
		t.Fatalf("unexpected first group: %+v", first)
	}
}

func TestRunDistinct(t *testing.T) {
	ex := newTestExecutor(t)
	insertDoc(t, ex, "users", map[string]interface{}{"_key": "a", "city": "NYC"})
	insertDoc(t, ex, "users", map[string]interface{}{"_key": "b", "city": "NYC"})
	insertDoc(t, ex, "users", map[string]interface{}{"_key": "c", "city": "LA"})

	res, err := ex.Run(`FOR u IN users RETURN DISTINCT u.city`, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Rows) != 2 {
		t.Fatalf("got %d distinct rows, want 2: %+v", len(res.Rows), res.Rows)
	}
}

func TestRunInsertReturnsNew(t *testing.T) {
	ex := newTestExecutor(t)
	res, err := ex.Run(`INSERT { _key: "w1", name: "gadget" } INTO widgets RETURN NEW`, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(res.Rows))
	}
	name, _ := res.Rows[0].AsObject().Get("name")
	if name.AsString() != "gadget" {
		t.Fatalf("unexpected inserted doc: %+v", res.Rows[0])
	}

	doc, err := ex.Documents.Get("widgets", "w1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if doc.Key() != "w1" {
		t.Fatalf("unexpected stored key: %q", doc.Key())
	}
}

func TestRunUpdateReturnsOldAndNew(t *testing.T) {
	ex := newTestExecutor(t)
	insertDoc(t, ex, "widgets", map[string]interface{}{"_key": "w1", "name": "gadget", "color": "red"})

	res, err := ex.Run(`FOR w IN widgets FILTER w._key == "w1" UPDATE w._key WITH { color: "blue" } IN widgets RETURN NEW`, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	color, _ := res.Rows[0].AsObject().Get("color")
	if color.AsString() != "blue" {
		t.Fatalf("unexpected color after update: %+v", res.Rows[0])
	}
}

func TestRunBindVariable(t *testing.T) {
	ex := newTestExecutor(t)
	insertDoc(t, ex, "users", map[string]interface{}{"_key": "a", "age": 30})
	insertDoc(t, ex, "users", map[string]interface{}{"_key": "b", "age": 12})

	res, err := ex.Run(`FOR u IN users FILTER u.age >= @minAge RETURN u._key`, Options{
		BindVars: map[string]types.Value{"minAge": types.Int(18)},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Rows) != 1 || res.Rows[0].AsString() != "a" {
		t.Fatalf("unexpected rows: %+v", res.Rows)
	}
}

func TestRunGraphTraversal(t *testing.T) {
	ex := newTestExecutor(t)
	insertDoc(t, ex, "people", map[string]interface{}{"_key": "alice", "name": "Alice"})
	insertDoc(t, ex, "people", map[string]interface{}{"_key": "bob", "name": "Bob"})
	insertDoc(t, ex, "people", map[string]interface{}{"_key": "carl", "name": "Carl"})

	knows := types.NewObject()
	knows.Set("_key", types.String("1"))
	knows.Set("_from", types.String("people/alice"))
	knows.Set("_to", types.String("people/bob"))
	if _, err := ex.Documents.Insert("knows", knows); err != nil {
		t.Fatalf("Insert edge: %v", err)
	}
	knows2 := types.NewObject()
	knows2.Set("_key", types.String("2"))
	knows2.Set("_from", types.String("people/bob"))
	knows2.Set("_to", types.String("people/carl"))
	if _, err := ex.Documents.Insert("knows", knows2); err != nil {
		t.Fatalf("Insert edge: %v", err)
	}

	edges := storage.NewEdges(ex.Engine, ex.Database, "knows")
	if err := edges.Index("1", "people/alice", "people/bob"); err != nil {
		t.Fatalf("Index: %v", err)
	}
	if err := edges.Index("2", "people/bob", "people/carl"); err != nil {
		t.Fatalf("Index: %v", err)
	}

	res, err := ex.Run(`FOR v, e IN 1..2 OUTBOUND "people/alice" knows RETURN v.name`, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Rows) != 2 || res.Rows[0].AsString() != "Bob" || res.Rows[1].AsString() != "Carl" {
		t.Fatalf("unexpected traversal result: %+v", res.Rows)
	}
}

func TestRunSubqueryIsCorrelated(t *testing.T) {
	ex := newTestExecutor(t)
	insertDoc(t, ex, "customers", map[string]interface{}{"_key": "alice", "name": "Alice"})
	insertDoc(t, ex, "orders", map[string]interface{}{"_key": "1", "customer": "alice", "amount": 9})
	insertDoc(t, ex, "orders", map[string]interface{}{"_key": "2", "customer": "alice", "amount": 3})

	res, err := ex.Run(`FOR c IN customers RETURN { name: c.name, orders: (FOR o IN orders FILTER o.customer == c._key RETURN o.amount) }`, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	orders, _ := res.Rows[0].AsObject().Get("orders")
	if orders.Kind() != types.KindArray || len(orders.AsArray()) != 2 {
		t.Fatalf("unexpected correlated subquery result: %+v", orders)
	}
}

func TestRunExplainAnalyzeReportsCounters(t *testing.T) {
	ex := newTestExecutor(t)
	insertDoc(t, ex, "users", map[string]interface{}{"_key": "a", "age": 30})

	res, err := ex.Run(`FOR u IN users RETURN u`, Options{Analyze: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Explain == nil {
		t.Fatal("expected an explain plan")
	}
	if res.Explain.Counters.DocumentsScanned != 1 {
		t.Fatalf("DocumentsScanned = %d, want 1", res.Explain.Counters.DocumentsScanned)
	}
	if res.Explain.Counters.DocumentsReturned != 1 {
		t.Fatalf("DocumentsReturned = %d, want 1", res.Explain.Counters.DocumentsReturned)
	}
}

func TestRunPhoneticFunctions(t *testing.T) {
	ex := newTestExecutor(t)
	res, err := ex.Run(`RETURN SOUNDEX("Robert")`, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Rows[0].AsString() != "R163" {
		t.Fatalf("SOUNDEX(Robert) = %q, want R163", res.Rows[0].AsString())
	}
}

func TestRunPipeOperator(t *testing.T) {
	ex := newTestExecutor(t)
	res, err := ex.Run(`RETURN "  hi  " |> TRIM() |> UPPER()`, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Rows[0].AsString() != "HI" {
		t.Fatalf("got %q, want HI", res.Rows[0].AsString())
	}
}

func TestRunTemplateStringInterpolation(t *testing.T) {
	ex := newTestExecutor(t)
	insertDoc(t, ex, "users", map[string]interface{}{"_key": "a", "name": "Alice", "age": 30})

	res, err := ex.Run(`FOR u IN users RETURN $"${u.name} is ${u.age}"`, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Rows[0].AsString() != "Alice is 30" {
		t.Fatalf("got %q, want \"Alice is 30\"", res.Rows[0].AsString())
	}
}

func TestRunFuzzyMatchOperator(t *testing.T) {
	ex := newTestExecutor(t)
	insertDoc(t, ex, "users", map[string]interface{}{"_key": "a", "name": "Robert"})
	insertDoc(t, ex, "users", map[string]interface{}{"_key": "b", "name": "Bobby"})

	res, err := ex.Run(`FOR u IN users FILTER u.name ~= "Rupert" RETURN u._key`, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Rows) != 1 || res.Rows[0].AsString() != "a" {
		t.Fatalf("unexpected fuzzy-match result: %+v", res.Rows)
	}
}

func TestRunWindowRowNumberAndRank(t *testing.T) {
	ex := newTestExecutor(t)
	insertDoc(t, ex, "orders", map[string]interface{}{"_key": "1", "customer": "Alice", "amount": 30})
	insertDoc(t, ex, "orders", map[string]interface{}{"_key": "2", "customer": "Alice", "amount": 30})
	insertDoc(t, ex, "orders", map[string]interface{}{"_key": "3", "customer": "Alice", "amount": 10})
	insertDoc(t, ex, "orders", map[string]interface{}{"_key": "4", "customer": "Bob", "amount": 5})

	res, err := ex.Run(`FOR o IN orders
		WINDOW rn = ROW_NUMBER() OVER (PARTITION BY o.customer ORDER BY o.amount DESC)
		WINDOW rk = RANK() OVER (PARTITION BY o.customer ORDER BY o.amount DESC)
		SORT o.customer, o._key
		RETURN { key: o._key, rn, rk }`, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Rows) != 4 {
		t.Fatalf("got %d rows, want 4", len(res.Rows))
	}
	// Alice's three orders, sorted by _key 1,2,3: amounts 30,30,10.
	// ROW_NUMBER distinguishes the tie; RANK gives both rank 1, then rank 3.
	first := res.Rows[0].AsObject()
	rn, _ := first.Get("rn")
	rk, _ := first.Get("rk")
	if rn.AsInt() != 1 || rk.AsInt() != 1 {
		t.Fatalf("unexpected row 0 window values: rn=%v rk=%v", rn, rk)
	}
	third := res.Rows[2].AsObject()
	rk3, _ := third.Get("rk")
	if rk3.AsInt() != 3 {
		t.Fatalf("expected RANK to skip to 3 after a tie, got %v", rk3)
	}
	bob := res.Rows[3].AsObject()
	bobRn, _ := bob.Get("rn")
	if bobRn.AsInt() != 1 {
		t.Fatalf("expected Bob's partition to restart ROW_NUMBER at 1, got %v", bobRn)
	}
}

func TestRunWindowRunningSum(t *testing.T) {
	ex := newTestExecutor(t)
	insertDoc(t, ex, "orders", map[string]interface{}{"_key": "1", "amount": 10})
	insertDoc(t, ex, "orders", map[string]interface{}{"_key": "2", "amount": 20})
	insertDoc(t, ex, "orders", map[string]interface{}{"_key": "3", "amount": 30})

	res, err := ex.Run(`FOR o IN orders
		WINDOW running = SUM(o.amount) OVER (ORDER BY o._key)
		SORT o._key
		RETURN running`, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []int64{10, 30, 60}
	if len(res.Rows) != len(want) {
		t.Fatalf("got %d rows, want %d", len(res.Rows), len(want))
	}
	for i, w := range want {
		if res.Rows[i].AsInt() != w {
			t.Fatalf("running sum[%d] = %v, want %d", i, res.Rows[i], w)
		}
	}
}

func TestRunWindowLagLead(t *testing.T) {
	ex := newTestExecutor(t)
	insertDoc(t, ex, "events", map[string]interface{}{"_key": "1", "seq": 1, "val": "a"})
	insertDoc(t, ex, "events", map[string]interface{}{"_key": "2", "seq": 2, "val": "b"})
	insertDoc(t, ex, "events", map[string]interface{}{"_key": "3", "seq": 3, "val": "c"})

	res, err := ex.Run(`FOR e IN events
		WINDOW prev = LAG(e.val) OVER (ORDER BY e.seq)
		WINDOW next = LEAD(e.val) OVER (ORDER BY e.seq)
		SORT e.seq
		RETURN { prev, next }`, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	first := res.Rows[0].AsObject()
	if prev, _ := first.Get("prev"); !prev.IsNull() {
		t.Fatalf("expected first row's LAG to be null, got %+v", prev)
	}
	middle := res.Rows[1].AsObject()
	if prev, _ := middle.Get("prev"); prev.AsString() != "a" {
		t.Fatalf("expected middle row's LAG to be \"a\", got %+v", prev)
	}
	if next, _ := middle.Get("next"); next.AsString() != "c" {
		t.Fatalf("expected middle row's LEAD to be \"c\", got %+v", next)
	}
	last := res.Rows[2].AsObject()
	if next, _ := last.Get("next"); !next.IsNull() {
		t.Fatalf("expected last row's LEAD to be null, got %+v", next)
	}
}

func TestRunCreateAndRefreshMaterializedView(t *testing.T) {
	ex := newTestExecutor(t)
	insertDoc(t, ex, "users", map[string]interface{}{"_key": "a", "name": "Alice", "active": 1})
	insertDoc(t, ex, "users", map[string]interface{}{"_key": "b", "name": "Bob", "active": 0})

	if _, err := ex.Run(`CREATE MATERIALIZED VIEW active_users AS (FOR u IN users FILTER u.active == 1 RETURN u) INTO active_users_view`, Options{}); err != nil {
		t.Fatalf("CREATE MATERIALIZED VIEW: %v", err)
	}

	var names []string
	err := ex.Documents.Scan("active_users_view", func(doc *types.Document) error {
		v, _ := doc.Value().AsObject().Get("name")
		names = append(names, v.AsString())
		return nil
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(names) != 1 || names[0] != "Alice" {
		t.Fatalf("unexpected materialized view contents: %v", names)
	}

	insertDoc(t, ex, "users", map[string]interface{}{"_key": "c", "name": "Carl", "active": 1})
	if _, err := ex.Run(`REFRESH MATERIALIZED VIEW active_users`, Options{}); err != nil {
		t.Fatalf("REFRESH MATERIALIZED VIEW: %v", err)
	}

	names = nil
	err = ex.Documents.Scan("active_users_view", func(doc *types.Document) error {
		v, _ := doc.Value().AsObject().Get("name")
		names = append(names, v.AsString())
		return nil
	})
	if err != nil {
		t.Fatalf("Scan after refresh: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("expected 2 active users after refresh, got %v", names)
	}
}

func TestRunCreateStreamPersistsRecipe(t *testing.T) {
	ex := newTestExecutor(t)
	if _, err := ex.Run(`CREATE STREAM hot_orders AS (FOR o IN orders RETURN o) WINDOW TUMBLING(60)`, Options{}); err != nil {
		t.Fatalf("CREATE STREAM: %v", err)
	}

	raw, err := ex.Engine.Get(ex.Database, streamDefBucket, []byte("hot_orders"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if raw == nil {
		t.Fatal("expected a persisted stream definition")
	}
}
