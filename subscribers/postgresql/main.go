package postgresql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quix-labs/el-amqp-transport/internals/types"
	"github.com/quix-labs/el-amqp-transport/internals/utils"
	"github.com/quix-labs/el-amqp-transport/subscribers"
)

const (
	ApplicationName = "ElAmqp_Listener"
	PoolMinConn     = 1
	PoolMaxConn     = 2
	EventName       = "el_amqp_event"
)

type Config struct {
	Host     string  `json:"host"`
	Port     uint16  `json:"port"`
	Database string  `json:"database"`
	Username string  `json:"username"`
	Password string  `json:"password"`
	Channel  string  `json:"channel"`
	Tables   []Table `json:"tables"`
}

// Subscriber turns pg_notify payloads into index and delete events.
//
// Expected payload:
//
//	{"action":"index","index":"blog","type":"post","id":"42","document":{...}}
//	{"action":"delete","index":"blog","id":"42"}
//
// Notifications carrying a table and no document are resolved by reading the
// row back from that table.
type Subscriber struct {
	subscribers.Subscriber
	conn    *pgxpool.Pool
	channel string
	tables  map[string]Table

	// fetch reads one document, replaced in tests.
	fetch func(ctx context.Context, table Table, id string) (json.RawMessage, error)
}

type notification struct {
	Action   string          `json:"action"`
	Table    string          `json:"table"`
	Index    string          `json:"index"`
	Type     string          `json:"type"`
	ID       string          `json:"id"`
	Document json.RawMessage `json:"document"`
}

func (pg *Subscriber) Init(config map[string]any) error {
	var conf Config
	if err := utils.ParseMap(config, &conf); err != nil {
		return fmt.Errorf("invalid postgresql config: %w", err)
	}
	pg.channel = conf.Channel
	if pg.channel == "" {
		pg.channel = EventName
	}
	pg.tables = make(map[string]Table, len(conf.Tables))
	for _, table := range conf.Tables {
		pg.tables[table.Table] = table
	}

	connConf, err := pgxpool.ParseConfig("")
	if err != nil {
		return err
	}
	connConf.ConnConfig.Config.RuntimeParams["application_name"] = ApplicationName
	connConf.MinConns = PoolMinConn
	connConf.MaxConns = PoolMaxConn
	if conf.Host != "" {
		connConf.ConnConfig.Config.Host = conf.Host
	}
	if conf.Port != 0 {
		connConf.ConnConfig.Config.Port = conf.Port
	}
	if conf.Database != "" {
		connConf.ConnConfig.Config.Database = conf.Database
	}
	if conf.Username != "" {
		connConf.ConnConfig.Config.User = conf.Username
	}
	if conf.Password != "" {
		connConf.ConnConfig.Config.Password = conf.Password
	}

	if pg.conn, err = pgxpool.NewWithConfig(context.Background(), connConf); err != nil {
		return fmt.Errorf("unable to connect to database: %w", err)
	}
	pg.Logger.Info().Msgf("Successfully connected to %s@%s/%s", conf.Username, conf.Host, conf.Database)
	return pg.installTriggers(context.Background(), conf.Tables)
}

func (pg *Subscriber) Listen(ctx context.Context) error {
	persistentConn, err := pg.conn.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("cannot get listen connection: %w", err)
	}
	defer persistentConn.Release()

	listenConn := persistentConn.Conn()
	if _, err = listenConn.Exec(ctx, "listen "+pgx.Identifier{pg.channel}.Sanitize()); err != nil {
		return fmt.Errorf("error listening to channel %s: %w", pg.channel, err)
	}
	pg.Logger.Info().Str("channel", pg.channel).Msg("Listening for notifications")

	for {
		notification, err := listenConn.WaitForNotification(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("error waiting for notification: %w", err)
		}
		event, err := pg.parseNotification(ctx, notification)
		if err != nil {
			pg.Logger.Warn().Err(err).Str("payload", notification.Payload).Msg("Skipping notification")
			continue
		}
		if err := pg.DispatchEvent(ctx, event); err != nil {
			return nil
		}
	}
}

func (pg *Subscriber) parseNotification(ctx context.Context, n *pgconn.Notification) (types.Event, error) {
	var res notification
	if err := json.Unmarshal([]byte(n.Payload), &res); err != nil {
		return nil, err
	}
	if res.ID == "" {
		return nil, &types.MissingIdentifierError{Op: types.OperationKind(res.Action)}
	}
	options := types.Options{Index: res.Index, Type: res.Type}

	switch res.Action {
	case "index", "insert", "update":
		if len(res.Document) == 0 || string(res.Document) == "null" {
			if res.Table == "" {
				return nil, fmt.Errorf("notification for %s has no document", res.ID)
			}
			document, err := pg.loadDocument(ctx, res.Table, res.ID)
			if err != nil {
				return nil, err
			}
			res.Document = document
		}
		return types.IndexEvent{
			Subscriber: pg.Name,
			Options:    options,
			Reference:  res.ID,
			Document:   res.Document,
		}, nil
	case "delete":
		return types.DeleteEvent{
			Subscriber: pg.Name,
			Options:    options,
			Reference:  res.ID,
		}, nil
	default:
		return nil, fmt.Errorf("unable to parse event with action: %s", res.Action)
	}
}

func (pg *Subscriber) loadDocument(ctx context.Context, name string, id string) (json.RawMessage, error) {
	table, ok := pg.tables[name]
	if !ok {
		return nil, fmt.Errorf("notification references unknown table %s", name)
	}
	fetch := pg.fetch
	if fetch == nil {
		fetch = pg.selectDocument
	}
	document, err := fetch(ctx, table, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("row %s of %s no longer exists: %w", id, name, err)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot read row %s of %s: %w", id, name, err)
	}
	return document, nil
}

func (pg *Subscriber) selectDocument(ctx context.Context, table Table, id string) (json.RawMessage, error) {
	var document string
	if err := pg.conn.QueryRow(ctx, table.selectQuery(), id).Scan(&document); err != nil {
		return nil, err
	}
	return json.RawMessage(document), nil
}

func (pg *Subscriber) Terminate() error {
	if pg.conn != nil {
		pg.conn.Close()
	}
	return nil
}
