package wallet

import (
	"context"
	stdErrors "errors"
	"fmt"
	"sync"
	"testing"
)

func testRecord(userID string, items ...Item) *Record {
	record := &Record{UserID: userID, Items: items}
	if len(items) > 0 {
		record.CurrentAddress = items[0].Address
	}
	return record
}

func testItem(name, suffix string) Item {
	return Item{
		Name:             name,
		Address:          "inj1addr" + suffix,
		SecondaryAddress: "0xAddr" + suffix,
		EncryptedKey:     "00:11",
	}
}

func TestMemoryStoreInsertAndGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	record := testRecord("u1", testItem("main", "a"))
	if err := store.Insert(ctx, record); err != nil {
		t.Fatalf("Insert 失败: %v", err)
	}

	got, err := store.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get 失败: %v", err)
	}
	if got.CurrentAddress != "inj1addra" {
		t.Fatalf("current_address = %q", got.CurrentAddress)
	}
	if len(got.Items) != 1 || got.Items[0].Name != "main" {
		t.Fatalf("意外的子钱包列表: %+v", got.Items)
	}

	// 修改返回值不应影响存储内容
	got.Items[0].Name = "mutated"
	again, err := store.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get 失败: %v", err)
	}
	if again.Items[0].Name != "main" {
		t.Fatalf("存储内容被外部修改污染: %+v", again.Items)
	}
}

func TestMemoryStoreDuplicateUser(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Insert(ctx, testRecord("u1", testItem("main", "a"))); err != nil {
		t.Fatalf("Insert 失败: %v", err)
	}
	err := store.Insert(ctx, testRecord("u1", testItem("main", "b")))
	if !stdErrors.Is(err, ErrDuplicateUser) {
		t.Fatalf("期望 ErrDuplicateUser，实际: %v", err)
	}
}

func TestMemoryStoreAppendItemConflicts(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Insert(ctx, testRecord("u1", testItem("main", "a"))); err != nil {
		t.Fatalf("Insert 失败: %v", err)
	}

	if err := store.AppendItem(ctx, "missing", testItem("x", "b")); !stdErrors.Is(err, ErrUserNotFound) {
		t.Fatalf("期望 ErrUserNotFound，实际: %v", err)
	}
	if err := store.AppendItem(ctx, "u1", testItem("main", "c")); !stdErrors.Is(err, ErrDuplicateName) {
		t.Fatalf("期望 ErrDuplicateName，实际: %v", err)
	}
	if err := store.AppendItem(ctx, "u1", testItem("other", "a")); !stdErrors.Is(err, ErrAddressConflict) {
		t.Fatalf("期望 ErrAddressConflict，实际: %v", err)
	}
	if err := store.AppendItem(ctx, "u1", testItem("second", "d")); err != nil {
		t.Fatalf("追加合法子钱包失败: %v", err)
	}
}

func TestMemoryStoreSetCurrentAddress(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Insert(ctx, testRecord("u1", testItem("main", "a"), testItem("second", "b"))); err != nil {
		t.Fatalf("Insert 失败: %v", err)
	}

	if err := store.SetCurrentAddress(ctx, "u1", "inj1addrb"); err != nil {
		t.Fatalf("SetCurrentAddress 失败: %v", err)
	}
	got, _ := store.Get(ctx, "u1")
	if got.CurrentAddress != "inj1addrb" {
		t.Fatalf("current_address = %q", got.CurrentAddress)
	}

	if err := store.SetCurrentAddress(ctx, "u1", "inj1unknown"); !stdErrors.Is(err, ErrItemNotFound) {
		t.Fatalf("期望 ErrItemNotFound，实际: %v", err)
	}
	if err := store.SetCurrentAddress(ctx, "nobody", "inj1addrb"); !stdErrors.Is(err, ErrUserNotFound) {
		t.Fatalf("期望 ErrUserNotFound，实际: %v", err)
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Insert(ctx, testRecord("u1", testItem("main", "a"))); err != nil {
		t.Fatalf("Insert 失败: %v", err)
	}
	if err := store.Delete(ctx, "u1"); err != nil {
		t.Fatalf("Delete 失败: %v", err)
	}
	exists, err := store.Exists(ctx, "u1")
	if err != nil || exists {
		t.Fatalf("删除后 Exists = %v, err = %v", exists, err)
	}
	// 地址索引也应被释放
	if err := store.Insert(ctx, testRecord("u2", testItem("main", "a"))); err != nil {
		t.Fatalf("复用已释放地址失败: %v", err)
	}
	if err := store.Delete(ctx, "u1"); !stdErrors.Is(err, ErrUserNotFound) {
		t.Fatalf("期望 ErrUserNotFound，实际: %v", err)
	}
}

func TestMemoryStoreConcurrentAppendSameName(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Insert(ctx, testRecord("u1", testItem("main", "seed"))); err != nil {
		t.Fatalf("Insert 失败: %v", err)
	}

	const workers = 16
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.AppendItem(ctx, "u1", testItem("racer", fmt.Sprintf("r%d", i)))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else if !stdErrors.Is(err, ErrDuplicateName) {
			t.Fatalf("意外错误: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("同名并发追加成功 %d 次，期望恰好 1 次", succeeded)
	}

	got, _ := store.Get(ctx, "u1")
	if len(got.Items) != 2 {
		t.Fatalf("子钱包数量 = %d，期望 2", len(got.Items))
	}
}
