package v1

import (
	"encoding/base64"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"
)

// Watch event kinds. EventReady is sent once by the server when the stream
// is subscribed; the others mirror the session event kinds.
const (
	EventReady = "ready"
	EventData  = "data"
	EventError = "error"
	EventExit  = "exit"
)

const (
	fieldProfile   = "profile"
	fieldRegion    = "region"
	fieldCluster   = "cluster"
	fieldService   = "service"
	fieldTask      = "task"
	fieldContainer = "container"
	fieldShell     = "shell"
	fieldSessionID = "session_id"
	fieldData      = "data"
	fieldKind      = "kind"
	fieldTopic     = "topic"
	fieldPayload   = "payload"
	fieldName      = "name"
	fieldInstalled = "installed"
	fieldVersion   = "version"
)

func newStruct(kv ...string) *structpb.Struct {
	fields := make(map[string]*structpb.Value, len(kv)/2)

	for i := 0; i+1 < len(kv); i += 2 {
		fields[kv[i]] = structpb.NewStringValue(kv[i+1])
	}

	return &structpb.Struct{Fields: fields}
}

func str(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

// Scope selects the AWS profile and region a request runs against. Empty
// values fall back to the daemon's configured defaults.
type Scope struct {
	Profile string
	Region  string
}

func parseScope(s *structpb.Struct) Scope {
	return Scope{Profile: str(s, fieldProfile), Region: str(s, fieldRegion)}
}

type ListClustersRequest struct {
	Scope
}

func (r ListClustersRequest) Struct() *structpb.Struct {
	return newStruct(fieldProfile, r.Profile, fieldRegion, r.Region)
}

func ParseListClustersRequest(s *structpb.Struct) ListClustersRequest {
	return ListClustersRequest{Scope: parseScope(s)}
}

type ListServicesRequest struct {
	Scope
	Cluster string
}

func (r ListServicesRequest) Struct() *structpb.Struct {
	return newStruct(
		fieldProfile, r.Profile,
		fieldRegion, r.Region,
		fieldCluster, r.Cluster,
	)
}

func ParseListServicesRequest(s *structpb.Struct) ListServicesRequest {
	return ListServicesRequest{Scope: parseScope(s), Cluster: str(s, fieldCluster)}
}

type ListTasksRequest struct {
	Scope
	Cluster string

	// Service optionally narrows the tasks to one service.
	Service string
}

func (r ListTasksRequest) Struct() *structpb.Struct {
	return newStruct(
		fieldProfile, r.Profile,
		fieldRegion, r.Region,
		fieldCluster, r.Cluster,
		fieldService, r.Service,
	)
}

func ParseListTasksRequest(s *structpb.Struct) ListTasksRequest {
	return ListTasksRequest{
		Scope:   parseScope(s),
		Cluster: str(s, fieldCluster),
		Service: str(s, fieldService),
	}
}

type DescribeTasksRequest struct {
	Scope
	Cluster string
	Task    string
}

func (r DescribeTasksRequest) Struct() *structpb.Struct {
	return newStruct(
		fieldProfile, r.Profile,
		fieldRegion, r.Region,
		fieldCluster, r.Cluster,
		fieldTask, r.Task,
	)
}

func ParseDescribeTasksRequest(s *structpb.Struct) DescribeTasksRequest {
	return DescribeTasksRequest{
		Scope:   parseScope(s),
		Cluster: str(s, fieldCluster),
		Task:    str(s, fieldTask),
	}
}

// LoginRequest is used by both Login and CancelLogin.
type LoginRequest struct {
	Profile string
}

func (r LoginRequest) Struct() *structpb.Struct {
	return newStruct(fieldProfile, r.Profile)
}

func ParseLoginRequest(s *structpb.Struct) LoginRequest {
	return LoginRequest{Profile: str(s, fieldProfile)}
}

type StartSessionRequest struct {
	SessionID string
	Scope
	Cluster   string
	Task      string
	Container string
	Shell     string
}

func (r StartSessionRequest) Struct() *structpb.Struct {
	return newStruct(
		fieldSessionID, r.SessionID,
		fieldProfile, r.Profile,
		fieldRegion, r.Region,
		fieldCluster, r.Cluster,
		fieldTask, r.Task,
		fieldContainer, r.Container,
		fieldShell, r.Shell,
	)
}

func ParseStartSessionRequest(s *structpb.Struct) StartSessionRequest {
	return StartSessionRequest{
		SessionID: str(s, fieldSessionID),
		Scope:     parseScope(s),
		Cluster:   str(s, fieldCluster),
		Task:      str(s, fieldTask),
		Container: str(s, fieldContainer),
		Shell:     str(s, fieldShell),
	}
}

// SendInputRequest carries raw bytes, which travel base64 encoded.
type SendInputRequest struct {
	SessionID string
	Data      []byte
}

func (r SendInputRequest) Struct() *structpb.Struct {
	return newStruct(
		fieldSessionID, r.SessionID,
		fieldData, base64.StdEncoding.EncodeToString(r.Data),
	)
}

func ParseSendInputRequest(s *structpb.Struct) (SendInputRequest, error) {
	data, err := base64.StdEncoding.DecodeString(str(s, fieldData))
	if err != nil {
		return SendInputRequest{}, fmt.Errorf("decode input data: %w", err)
	}

	return SendInputRequest{SessionID: str(s, fieldSessionID), Data: data}, nil
}

// SessionRequest names a session, for CloseSession and Watch.
type SessionRequest struct {
	SessionID string
}

func (r SessionRequest) Struct() *structpb.Struct {
	return newStruct(fieldSessionID, r.SessionID)
}

func ParseSessionRequest(s *structpb.Struct) SessionRequest {
	return SessionRequest{SessionID: str(s, fieldSessionID)}
}

// WatchEvent is one message of a Watch stream.
type WatchEvent struct {
	Kind    string
	Topic   string
	Payload string
}

func (e WatchEvent) Struct() *structpb.Struct {
	return newStruct(
		fieldKind, e.Kind,
		fieldTopic, e.Topic,
		fieldPayload, e.Payload,
	)
}

func ParseWatchEvent(s *structpb.Struct) WatchEvent {
	return WatchEvent{
		Kind:    str(s, fieldKind),
		Topic:   str(s, fieldTopic),
		Payload: str(s, fieldPayload),
	}
}

// Empty is the response of methods that return nothing.
func Empty() *structpb.Value {
	return structpb.NewNullValue()
}

// StringsValue encodes a list of strings, such as resource ARNs.
func StringsValue(items []string) *structpb.Value {
	values := make([]*structpb.Value, 0, len(items))

	for _, item := range items {
		values = append(values, structpb.NewStringValue(item))
	}

	return structpb.NewListValue(&structpb.ListValue{Values: values})
}

// Strings decodes a list of strings. Non-string items are skipped.
func Strings(v *structpb.Value) []string {
	values := v.GetListValue().GetValues()

	items := make([]string, 0, len(values))

	for _, value := range values {
		if s, ok := value.GetKind().(*structpb.Value_StringValue); ok {
			items = append(items, s.StringValue)
		}
	}

	return items
}

// Tool reports whether a required tool is installed.
type Tool struct {
	Name      string
	Installed bool
	Version   string
}

func ToolsValue(tools []Tool) *structpb.Value {
	values := make([]*structpb.Value, 0, len(tools))

	for _, tool := range tools {
		values = append(values, structpb.NewStructValue(&structpb.Struct{
			Fields: map[string]*structpb.Value{
				fieldName:      structpb.NewStringValue(tool.Name),
				fieldInstalled: structpb.NewBoolValue(tool.Installed),
				fieldVersion:   structpb.NewStringValue(tool.Version),
			},
		}))
	}

	return structpb.NewListValue(&structpb.ListValue{Values: values})
}

func Tools(v *structpb.Value) []Tool {
	values := v.GetListValue().GetValues()

	tools := make([]Tool, 0, len(values))

	for _, value := range values {
		s := value.GetStructValue()
		if s == nil {
			continue
		}

		tools = append(tools, Tool{
			Name:      str(s, fieldName),
			Installed: s.GetFields()[fieldInstalled].GetBoolValue(),
			Version:   str(s, fieldVersion),
		})
	}

	return tools
}
