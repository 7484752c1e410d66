package backup

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/require"
)

const testPassphrase = "correct horse battery staple"

var (
	testCipherOnce sync.Once
	testCipher     *Cipher
	testCipherErr  error
)

// newTestCipher derives the test key once; scrypt is deliberately slow.
func newTestCipher(t *testing.T) *Cipher {
	t.Helper()
	testCipherOnce.Do(func() {
		testCipher, testCipherErr = NewCipher(testPassphrase)
	})
	require.NoError(t, testCipherErr)
	return testCipher
}

// memoryStore is an in-memory ObjectStore
type memoryStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	modTimes  map[string]time.Time
	uploads   int
	failList  error
	failPut   error
	failDel   map[string]error
	onPut     func(name string, data []byte) []byte
	ensured   bool
	listCalls int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		objects:  make(map[string][]byte),
		modTimes: make(map[string]time.Time),
		failDel:  make(map[string]error),
	}
}

func (m *memoryStore) EnsureContainer(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensured = true
	return nil
}

func (m *memoryStore) Upload(ctx context.Context, name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPut != nil {
		return m.failPut
	}
	m.uploads++
	stored := append([]byte(nil), data...)
	if m.onPut != nil {
		stored = m.onPut(name, stored)
	}
	m.objects[name] = stored
	m.modTimes[name] = time.Now()
	return nil
}

func (m *memoryStore) Download(ctx context.Context, name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[name]
	if !ok {
		return nil, NewNotFoundError(fmt.Sprintf("blob %s not found", name), nil)
	}
	return append([]byte(nil), data...), nil
}

func (m *memoryStore) List(ctx context.Context) ([]ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	if m.failList != nil {
		return nil, m.failList
	}
	var objects []ObjectInfo
	for name, data := range m.objects {
		objects = append(objects, ObjectInfo{Name: name, Size: int64(len(data)), ModTime: m.modTimes[name]})
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Name < objects[j].Name })
	return objects, nil
}

func (m *memoryStore) Delete(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failDel[name]; err != nil {
		return err
	}
	if _, ok := m.objects[name]; !ok {
		return NewNotFoundError(fmt.Sprintf("blob %s not found", name), nil)
	}
	delete(m.objects, name)
	delete(m.modTimes, name)
	return nil
}

func (m *memoryStore) put(name string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[name] = data
	m.modTimes[name] = time.Now()
}

func (m *memoryStore) names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.objects))
	for name := range m.objects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type pageCall struct {
	table   string
	orderBy string
	limit   int
	offset  int
}

// fakeDatabase is an in-memory source and destination database
type fakeDatabase struct {
	mu         sync.Mutex
	tables     map[string][]Row
	noID       map[string]bool
	failRead   map[string]error
	failTimes  map[string]int
	catalogErr error
	calls      []pageCall

	failDelete map[string]error
	failInsert map[string]error
	inserts    map[string]int
	deletes    map[string]int
}

func newFakeDatabase() *fakeDatabase {
	return &fakeDatabase{
		tables:     make(map[string][]Row),
		noID:       make(map[string]bool),
		failRead:   make(map[string]error),
		failTimes:  make(map[string]int),
		failDelete: make(map[string]error),
		failInsert: make(map[string]error),
		inserts:    make(map[string]int),
		deletes:    make(map[string]int),
	}
}

func (f *fakeDatabase) ListTables(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.catalogErr != nil {
		return nil, f.catalogErr
	}
	names := make([]string, 0, len(f.tables))
	for name := range f.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (f *fakeDatabase) ReadPage(ctx context.Context, table, orderBy string, limit, offset int) ([]Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, pageCall{table: table, orderBy: orderBy, limit: limit, offset: offset})

	if err := f.failRead[table]; err != nil {
		if remaining, limited := f.failTimes[table]; !limited || remaining > 0 {
			if limited {
				f.failTimes[table] = remaining - 1
			}
			return nil, err
		}
	}
	if orderBy != "" && f.noID[table] {
		return nil, &mysql.MySQLError{Number: 1054, Message: fmt.Sprintf("Unknown column '%s' in 'order clause'", orderBy)}
	}

	rows, ok := f.tables[table]
	if !ok {
		return nil, &mysql.MySQLError{Number: 1146, Message: fmt.Sprintf("Table '%s' doesn't exist", table)}
	}
	if offset >= len(rows) {
		return []Row{}, nil
	}
	end := offset + limit
	if end > len(rows) {
		end = len(rows)
	}
	page := make([]Row, 0, end-offset)
	for _, row := range rows[offset:end] {
		copied := make(Row, len(row))
		for k, v := range row {
			copied[k] = v
		}
		page = append(page, copied)
	}
	return page, nil
}

func (f *fakeDatabase) CountTenantRows(ctx context.Context, table, tenantColumn, tenantID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, row := range f.tables[table] {
		if fmt.Sprint(row[tenantColumn]) == tenantID {
			count++
		}
	}
	return count, nil
}

func (f *fakeDatabase) DeleteTenantRows(ctx context.Context, table, tenantColumn, tenantID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failDelete[table]; err != nil {
		return 0, err
	}
	var kept []Row
	var deleted int64
	for _, row := range f.tables[table] {
		if fmt.Sprint(row[tenantColumn]) == tenantID {
			deleted++
			continue
		}
		kept = append(kept, row)
	}
	f.tables[table] = kept
	f.deletes[table]++
	return deleted, nil
}

func (f *fakeDatabase) InsertRows(ctx context.Context, table string, rows []Row) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failInsert[table]; err != nil {
		return 0, err
	}
	f.tables[table] = append(f.tables[table], rows...)
	f.inserts[table]++
	return int64(len(rows)), nil
}

func (f *fakeDatabase) rowsFor(table, column, tenantID string) []Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	var rows []Row
	for _, row := range f.tables[table] {
		if fmt.Sprint(row[column]) == tenantID {
			rows = append(rows, row)
		}
	}
	return rows
}

func (f *fakeDatabase) callsFor(table string) []pageCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var calls []pageCall
	for _, c := range f.calls {
		if c.table == table {
			calls = append(calls, c)
		}
	}
	return calls
}

// makeRows builds n rows with sequential ids for tenant
func makeRows(n int, tenant int, firstID int) []Row {
	rows := make([]Row, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, Row{
			"id":              firstID + i,
			"organization_id": tenant,
			"name":            fmt.Sprintf("row-%d", firstID+i),
		})
	}
	return rows
}

// newTestConfig returns a fully defaulted configuration for a local store
func newTestConfig(t *testing.T) *Config {
	t.Helper()
	config := &Config{}
	config.SetDefaults()
	config.Storage.Local.BasePath = t.TempDir()
	config.Encryption.Passphrase = testPassphrase
	config.Extraction.RetryDelay = time.Millisecond
	return config
}

// steppingClock returns a clock that advances one second per call
func steppingClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	current := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := current
		current = current.Add(time.Second)
		return now
	}
}
