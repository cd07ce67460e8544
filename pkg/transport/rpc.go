package transport

import (
	"io"
	"net"
	"reflect"

	msgpack "github.com/hashicorp/go-msgpack/v2/codec"

	"github.com/cuemby/solidb/pkg/log"
	"github.com/cuemby/solidb/pkg/metrics"
	"github.com/cuemby/solidb/pkg/types"
)

var msgpackHandle = &msgpack.MsgpackHandle{}

func init() {
	msgpackHandle.RawToString = true
	// Decode msgpack maps into map[string]any rather than the codec's
	// default map[interface{}]any when the destination is an untyped
	// any field (okBody.Data, Command.Fields/BindVars before they hit
	// their typed fields) -- every map key on the wire is a command or
	// document field name, never a non-string key.
	msgpackHandle.MapType = reflect.TypeOf(map[string]interface{}(nil))
}

// Command is one request frame of the binary protocol (spec §4.11): a
// single struct carrying every operation's parameters, tagged by Op
// rather than modeled as one Go type per command so the wire codec stays
// a single flat map.
type Command struct {
	ID          uint64         `codec:"id"`
	Op          string         `codec:"op"`
	Token       string         `codec:"token,omitempty"`
	Database    string         `codec:"database,omitempty"`
	Collection  string         `codec:"collection,omitempty"`
	Kind        string         `codec:"kind,omitempty"`
	Key         string         `codec:"key,omitempty"`
	ExpectedRev string         `codec:"expected_rev,omitempty"`
	Fields      map[string]any `codec:"fields,omitempty"`
	Query       string         `codec:"query,omitempty"`
	BindVars    map[string]any `codec:"bind_vars,omitempty"`
	Isolation   string         `codec:"isolation,omitempty"`
	TxnID       uint64         `codec:"txn_id,omitempty"`
	IndexName   string         `codec:"index_name,omitempty"`
	IndexKind   string         `codec:"index_kind,omitempty"`
	IndexFields []string       `codec:"index_fields,omitempty"`
	Unique      bool           `codec:"unique,omitempty"`
}

// Response is one reply frame: exactly one of Ok, Error or Stream is set
// (spec §4.11 "Responses are one of {Ok, Error, Stream}").
type Response struct {
	ID     uint64      `codec:"id"`
	Ok     *okBody     `codec:"ok,omitempty"`
	Error  *errorBody  `codec:"error,omitempty"`
	Stream *streamBody `codec:"stream,omitempty"`
}

type okBody struct {
	Data  any  `codec:"data,omitempty"`
	Count *int `codec:"count,omitempty"`
}

type errorBody struct {
	Kind    string `codec:"kind"`
	Message string `codec:"message"`
	Origin  string `codec:"origin,omitempty"`
}

type streamBody struct {
	Chunk any  `codec:"chunk"`
	Last  bool `codec:"last,omitempty"`
}

// Protocol-level error tags (spec §4.11/§6), distinct from the
// domain-level kinds in pkg/types.ErrorKind (spec §7): these mark a
// failure in the framing or command dispatch itself rather than in the
// operation the command named.
const (
	protoProtocolError    = "ProtocolError"
	protoMessageTooLarge  = "MessageTooLarge"
	protoInvalidCommand   = "InvalidCommand"
	protoAuthError        = "AuthError"
)

func protocolErrorResponse(id uint64, kind, message string) Response {
	return Response{ID: id, Error: &errorBody{Kind: kind, Message: message}}
}

func errorResponse(id uint64, err error) Response {
	if e, ok := err.(*types.Error); ok {
		return Response{ID: id, Error: &errorBody{Kind: string(e.Kind), Message: e.Message, Origin: e.Origin}}
	}
	if err == errMessageTooLarge {
		return protocolErrorResponse(id, protoMessageTooLarge, err.Error())
	}
	return Response{ID: id, Error: &errorBody{Kind: string(types.ErrInternal), Message: err.Error()}}
}

func okResponse(id uint64, data any) Response {
	return Response{ID: id, Ok: &okBody{Data: data}}
}

func okCountResponse(id uint64, data any, count int) Response {
	return Response{ID: id, Ok: &okBody{Data: data, Count: &count}}
}

// serveBinary reads Command frames from conn and writes back Response
// frames until the connection closes or a frame error forces it shut.
// One connection is served sequentially: the binary protocol does not
// pipeline multiple in-flight commands per connection, matching a client
// that waits for Ok/Error before sending the next Command.
func (s *Server) serveBinary(conn net.Conn) {
	defer conn.Close()
	logger := log.WithComponent("transport-rpc")
	for {
		body, err := readFrame(conn)
		if err != nil {
			if err == errMessageTooLarge {
				_ = writeBinaryResponse(conn, errorResponse(0, err))
				return
			}
			if err != io.EOF {
				logger.Debug().Err(err).Msg("binary frame read failed")
			}
			return
		}
		var cmd Command
		dec := msgpack.NewDecoderBytes(body, msgpackHandle)
		if err := dec.Decode(&cmd); err != nil {
			_ = writeBinaryResponse(conn, protocolErrorResponse(0, protoProtocolError, "malformed command: "+err.Error()))
			return
		}
		resp := s.dispatch(&cmd)
		if err := writeBinaryResponse(conn, resp); err != nil {
			return
		}
	}
}

func writeBinaryResponse(conn net.Conn, resp Response) error {
	var body []byte
	enc := msgpack.NewEncoderBytes(&body, msgpackHandle)
	if err := enc.Encode(resp); err != nil {
		return err
	}
	return writeFrame(conn, body)
}

// dispatch executes one Command against the server's storage/query/
// transaction layers and builds the corresponding Response. It is the
// binary-protocol twin of the HTTP handlers in http.go; both paths
// bottom out in the same Server methods so the two protocols can never
// disagree about what an operation does.
func (s *Server) dispatch(cmd *Command) Response {
	resp := s.dispatchOp(cmd)
	outcome := "ok"
	if resp.Error != nil {
		outcome = "error"
	}
	metrics.RPCCommandsTotal.WithLabelValues(cmd.Op, outcome).Inc()
	return resp
}

func (s *Server) dispatchOp(cmd *Command) Response {
	caller, err := s.authorizeCommand(cmd)
	if err != nil {
		return errorResponse(cmd.ID, err)
	}

	switch cmd.Op {
	case "ListDatabases":
		dbs, err := s.catalog.ListDatabases()
		if err != nil {
			return errorResponse(cmd.ID, err)
		}
		names := make([]string, len(dbs))
		for i, d := range dbs {
			names[i] = d.Name
		}
		return okResponse(cmd.ID, names)

	case "CreateDatabase":
		if err := requireAdminErr(caller); err != nil {
			return errorResponse(cmd.ID, err)
		}
		db, err := s.catalog.CreateDatabase(cmd.Database)
		if err != nil {
			return errorResponse(cmd.ID, err)
		}
		return okResponse(cmd.ID, db.Name)

	case "DeleteDatabase":
		if err := requireAdminErr(caller); err != nil {
			return errorResponse(cmd.ID, err)
		}
		if err := s.catalog.DeleteDatabase(cmd.Database); err != nil {
			return errorResponse(cmd.ID, err)
		}
		return okResponse(cmd.ID, nil)

	case "CreateCollection":
		col := &types.Collection{Name: cmd.Collection, Kind: types.CollectionKind(cmd.Kind)}
		if col.Kind == "" {
			col.Kind = types.CollectionDocument
		}
		if err := s.catalog.CreateCollection(cmd.Database, col); err != nil {
			return errorResponse(cmd.ID, err)
		}
		return okResponse(cmd.ID, col.Name)

	case "DeleteCollection":
		if err := s.catalog.DeleteCollection(cmd.Database, cmd.Collection); err != nil {
			return errorResponse(cmd.ID, err)
		}
		return okResponse(cmd.ID, nil)

	case "Insert":
		docs, err := s.documentsFor(cmd.Database)
		if err != nil {
			return errorResponse(cmd.ID, err)
		}
		doc, err := docs.Insert(cmd.Collection, objectFromGo(cmd.Fields))
		if err != nil {
			return errorResponse(cmd.ID, err)
		}
		metrics.DocumentsTotal.WithLabelValues(cmd.Database, cmd.Collection).Inc()
		s.publishChange(cmd.Database, cmd.Collection, changeInsert, doc, nil)
		return okResponse(cmd.ID, documentToGo(doc))

	case "Get":
		docs, err := s.documentsFor(cmd.Database)
		if err != nil {
			return errorResponse(cmd.ID, err)
		}
		doc, err := docs.Get(cmd.Collection, cmd.Key)
		if err != nil {
			return errorResponse(cmd.ID, err)
		}
		return okResponse(cmd.ID, documentToGo(doc))

	case "Update":
		docs, err := s.documentsFor(cmd.Database)
		if err != nil {
			return errorResponse(cmd.ID, err)
		}
		old, _ := docs.Get(cmd.Collection, cmd.Key)
		doc, err := docs.Update(cmd.Collection, cmd.Key, objectFromGo(cmd.Fields), cmd.ExpectedRev)
		if err != nil {
			return errorResponse(cmd.ID, err)
		}
		s.publishChange(cmd.Database, cmd.Collection, changeUpdate, doc, old)
		return okResponse(cmd.ID, documentToGo(doc))

	case "Delete":
		docs, err := s.documentsFor(cmd.Database)
		if err != nil {
			return errorResponse(cmd.ID, err)
		}
		old, _ := docs.Get(cmd.Collection, cmd.Key)
		if err := docs.Delete(cmd.Collection, cmd.Key, cmd.ExpectedRev); err != nil {
			return errorResponse(cmd.ID, err)
		}
		metrics.DocumentsTotal.WithLabelValues(cmd.Database, cmd.Collection).Dec()
		s.publishChange(cmd.Database, cmd.Collection, changeDelete, nil, old)
		return okResponse(cmd.ID, nil)

	case "List":
		docs, err := s.documentsFor(cmd.Database)
		if err != nil {
			return errorResponse(cmd.ID, err)
		}
		var all []*types.Document
		if err := docs.Scan(cmd.Collection, func(d *types.Document) error {
			all = append(all, d)
			return nil
		}); err != nil {
			return errorResponse(cmd.ID, err)
		}
		return okCountResponse(cmd.ID, documentsToGo(all), len(all))

	case "Query", "Explain":
		rows, explain, err := s.runQuery(cmd.Database, cmd.Query, bindVarsFromGo(cmd.BindVars), cmd.Op == "Explain")
		if err != nil {
			return errorResponse(cmd.ID, err)
		}
		data := map[string]any{"result": rowsToGo(rows)}
		if explain != nil {
			data["explain"] = explainToGo(explain)
		}
		return okCountResponse(cmd.ID, data, len(rows))

	case "CreateIndex":
		idx, err := s.createIndex(cmd.Database, cmd.Collection, cmd.IndexKind, cmd.IndexName, cmd.IndexFields, cmd.Unique)
		if err != nil {
			return errorResponse(cmd.ID, err)
		}
		return okResponse(cmd.ID, idx.Name)

	case "DeleteIndex":
		if err := s.deleteIndex(cmd.Database, cmd.Collection, cmd.IndexName); err != nil {
			return errorResponse(cmd.ID, err)
		}
		return okResponse(cmd.ID, nil)

	default:
		return protocolErrorResponse(cmd.ID, protoInvalidCommand, "unknown command: "+cmd.Op)
	}
}

func bindVarsFromGo(m map[string]any) map[string]types.Value {
	out := make(map[string]types.Value, len(m))
	for k, v := range m {
		out[k] = valueFromGo(v)
	}
	return out
}
