// Package scopedb logs capture runs to a ClickHouse database. The
// connection is optional: when no server is reachable every Record call
// is a no-op, so the acquisition path never depends on the database.
package scopedb

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

const databaseName = "scoped" // official SQL name of the database

// CaptureMessage is one row of the captures table: a single armed
// capture of one channel.
type CaptureMessage struct {
	ID       string // ULID assigned at arm time
	Channel  int
	Base     uint32
	Length   uint32
	Ratio    uint32
	Hostname string
	Start    time.Time
	End      time.Time
}

// ScopeDBConnection wraps the ClickHouse connection and the message
// funnel feeding it.
type ScopeDBConnection struct {
	conn       clickhouse.Conn
	err        error
	capturemsg chan *CaptureMessage
	sync.WaitGroup
}

// IsConnected reports whether the database is usable.
func (db *ScopeDBConnection) IsConnected() bool {
	return (db != nil) && (db.conn != nil) && (db.err == nil)
}

// PingServer verifies that a ClickHouse server answers.
func PingServer() error {
	db := createDBConnection()
	if !db.IsConnected() {
		return fmt.Errorf("database is not connected")
	}
	v, err := db.conn.ServerVersion()
	if err != nil {
		return err
	}
	fmt.Printf("ClickHouse server is alive. Version:\n%s\n", v)
	db.conn.Close()
	return nil
}

// StartDBConnection opens the connection and launches its handler.
func StartDBConnection(abort <-chan struct{}) *ScopeDBConnection {
	db := createDBConnection()
	go db.handleConnection(abort)
	return db
}

// DummyDBConnection makes an unconnected stand-in whose Record calls do
// nothing.
func DummyDBConnection() *ScopeDBConnection {
	db := &ScopeDBConnection{}
	db.Add(1)
	return db
}

func createDBConnection() *ScopeDBConnection {
	db := &ScopeDBConnection{}
	auth := clickhouse.Auth{
		Database: databaseName,
		Username: os.Getenv("SCOPED_DB_USER"),
		Password: os.Getenv("SCOPED_DB_PASSWORD"),
	}
	client := clickhouse.ClientInfo{
		Products: []struct {
			Name    string
			Version string
		}{
			{Name: "scoped", Version: "unknown"},
		},
	}
	opt := clickhouse.Options{
		Addr:       []string{"localhost:9000"},
		Auth:       auth,
		ClientInfo: client,
		TLS:        nil,
	}
	conn, err := clickhouse.Open(&opt)
	if err != nil {
		db.err = err
		return db
	}
	db.conn = conn
	db.Add(1)

	if err = conn.Ping(context.Background()); err != nil {
		if exception, ok := err.(*clickhouse.Exception); ok {
			fmt.Printf("Exception [%d] %s \n%s\n", exception.Code, exception.Message, exception.StackTrace)
		}
		db.err = err
		return db
	}
	db.capturemsg = make(chan *CaptureMessage)
	return db
}

func (db *ScopeDBConnection) handleConnection(abort <-chan struct{}) {
	defer db.Done()
	for {
		select {
		case <-abort:
			db.Disconnect()
			return
		case msg := <-db.capturemsg:
			db.handleCaptureMessage(msg)
		}
	}
}

// Disconnect closes the connection.
func (db *ScopeDBConnection) Disconnect() {
	if db.IsConnected() {
		db.conn.Close()
	}
}

// RecordCapture stores a capture row in the DB (if it's open). Blocks
// until the handler accepts the message, so arm rows are entered in
// order.
func (db *ScopeDBConnection) RecordCapture(msg *CaptureMessage) {
	if !db.IsConnected() || msg == nil {
		return
	}
	db.capturemsg <- msg
}

// FinishCapture stamps the end time and re-records the row.
func (db *ScopeDBConnection) FinishCapture(msg *CaptureMessage) {
	if !db.IsConnected() || msg == nil {
		return
	}
	msg.End = time.Now()
	go func() { db.capturemsg <- msg }()
}

func (db *ScopeDBConnection) handleCaptureMessage(m *CaptureMessage) {
	if !db.IsConnected() {
		return
	}
	ctx := context.Background()
	const nowait = false
	formattedStart := m.Start.Format("2006-01-02 15:04:05.000000")
	formattedEnd := m.End.Format("2006-01-02 15:04:05.000000")
	if err := db.conn.AsyncInsert(ctx, `INSERT INTO captures VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, nowait,
		m.ID, m.Channel, m.Base, m.Length, m.Ratio, m.Hostname,
		formattedStart, formattedEnd,
	); err != nil {
		fmt.Println("Error raised on AsyncInsert into captures ", err)
		db.err = err
	}
}
