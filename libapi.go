package courier

import (
	addresspkg "github.com/couriermq/courier/internal/address"
	brokerpkg "github.com/couriermq/courier/internal/broker"
	configpkg "github.com/couriermq/courier/internal/config"
	envelopepkg "github.com/couriermq/courier/internal/envelope"
	errspkg "github.com/couriermq/courier/internal/errors"
	eventpkg "github.com/couriermq/courier/internal/event"
	idspkg "github.com/couriermq/courier/internal/ids"
	jsoncodec "github.com/couriermq/courier/internal/jsoncodec"
	loggingpkg "github.com/couriermq/courier/internal/logging"
	socketpkg "github.com/couriermq/courier/internal/socket"
	textcheckpkg "github.com/couriermq/courier/internal/textcheck"
	webhookpkg "github.com/couriermq/courier/internal/webhook"
	wirepkg "github.com/couriermq/courier/internal/wire"
)

type (
	Config = configpkg.Config
	Secret = configpkg.Secret

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	Error     = errspkg.Error
	ErrorKind = errspkg.Kind
	ErrorCode = errspkg.Code

	Address       = addresspkg.Address
	AddressFamily = addresspkg.Family

	Event    = eventpkg.Event
	Emitter  = eventpkg.Emitter
	Listener = eventpkg.Listener
	Handler  = eventpkg.Handler

	Message         = envelopepkg.Message
	EnvelopeOptions = envelopepkg.Options

	Socket         = socketpkg.Socket
	SocketState    = socketpkg.State
	SocketSettings = socketpkg.Settings
	Server         = socketpkg.Server

	WebhookEndpoint = webhookpkg.Endpoint
	WebhookState    = webhookpkg.State

	Broker          = brokerpkg.Broker
	Publisher       = brokerpkg.Publisher
	Consumer        = brokerpkg.Consumer
	Delivery        = brokerpkg.Delivery
	DeliveryHandler = brokerpkg.DeliveryHandler
	FrameScanner    = brokerpkg.FrameScanner

	WriteBuffer = wirepkg.WriteBuffer
	ReadBuffer  = wirepkg.ReadBuffer
	Value       = wirepkg.Value
	Tag         = wirepkg.Tag
)

var (
	ValidateConfig = configpkg.ValidateConfig

	NewSlogServiceLogger = loggingpkg.NewSlogServiceLogger
	NopLogger            = loggingpkg.Nop

	NewError     = errspkg.New
	WrapError    = errspkg.Wrap
	NormalizeErr = errspkg.Normalize
	KindOf       = errspkg.KindOf
	IsKind       = errspkg.IsKind
	CodeFor      = errspkg.CodeFor
	DescribeCode = errspkg.Describe
	RegisterCode = errspkg.RegisterCode

	ParseAddress       = addresspkg.Parse
	AddressFromNetAddr = addresspkg.FromNetAddr

	IsInteger = textcheckpkg.IsInteger
	IsDecimal = textcheckpkg.IsDecimal

	NewEmitter        = eventpkg.NewEmitter
	NewEmitterWithCap = eventpkg.NewEmitterWithCap
	NewListener       = eventpkg.NewListener

	CreateFrame = envelopepkg.Create
	ParseFrame  = envelopepkg.Parse
	Algorithms  = envelopepkg.Algorithms

	Dial               = socketpkg.Dial
	NewServer          = socketpkg.NewServer
	NewSettings        = socketpkg.NewSettings
	SettingsFromConfig = socketpkg.SettingsFromConfig

	NewWebhookEndpoint = webhookpkg.NewEndpoint

	NewBroker    = brokerpkg.NewBroker
	NewPublisher = brokerpkg.NewPublisher
	NewConsumer  = brokerpkg.NewConsumer
	EncodeFrame  = brokerpkg.EncodeFrame

	NewWriteBuffer  = wirepkg.NewWriteBuffer
	NewReadBuffer   = wirepkg.NewReadBuffer
	Serialize       = wirepkg.Serialize
	Deserialize     = wirepkg.Deserialize
	RegisterReviver = wirepkg.RegisterReviver

	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent
	Unmarshal     = jsoncodec.Unmarshal

	NewID       = idspkg.NewID
	IDTimestamp = idspkg.Timestamp
)

// Error kinds, stable across releases; CodeFor maps each to its numeric
// wire code.
const (
	KindUnknown          = errspkg.KindUnknown
	KindInvalidArgument  = errspkg.KindInvalidArgument
	KindResourceDisposed = errspkg.KindResourceDisposed
	KindEndOfStream      = errspkg.KindEndOfStream
	KindUnsupported      = errspkg.KindUnsupported
	KindInvalidSignature = errspkg.KindInvalidSignature
	KindNotImplemented   = errspkg.KindNotImplemented
	KindCancelled        = errspkg.KindCancelled
	KindTimeout          = errspkg.KindTimeout
)

// Socket and server lifecycle events.
const (
	EventData       = socketpkg.EventData
	EventFlushing   = socketpkg.EventFlushing
	EventClose      = socketpkg.EventClose
	EventError      = socketpkg.EventError
	EventConnection = socketpkg.EventConnection
)

// Socket lifecycle states.
const (
	StateConnecting    = socketpkg.StateConnecting
	StateOpen          = socketpkg.StateOpen
	StateFlushing      = socketpkg.StateFlushing
	StateBackpressured = socketpkg.StateBackpressured
	StateClosed        = socketpkg.StateClosed
	StateDisposed      = socketpkg.StateDisposed
)

// Webhook endpoint events and states, prefixed to keep them apart from the
// socket ones they partly overlap with.
const (
	WebhookEventRawMessage = webhookpkg.EventRawMessage
	WebhookEventMessage    = webhookpkg.EventMessage
	WebhookEventError      = webhookpkg.EventError
	WebhookEventListening  = webhookpkg.EventListening
	WebhookEventClose      = webhookpkg.EventClose

	WebhookPaused    = webhookpkg.StatePaused
	WebhookListening = webhookpkg.StateListening
	WebhookClosed    = webhookpkg.StateClosed
	WebhookDisposed  = webhookpkg.StateDisposed

	WebhookPath = webhookpkg.DefaultPath
)

// Broker headers and control topics.
const (
	HeaderMessageID   = brokerpkg.HeaderMessageID
	HeaderEventSchema = brokerpkg.HeaderEventSchema
	SubscribeTopic    = brokerpkg.SubscribeTopic
	UnsubscribeTopic  = brokerpkg.UnsubscribeTopic
)

// Configuration defaults.
const (
	DefaultHost           = configpkg.DefaultHost
	DefaultBacklog        = configpkg.DefaultBacklog
	DefaultMaxMessageSize = configpkg.DefaultMaxMessageSize
	DefaultHighWaterMark  = configpkg.DefaultHighWaterMark
	DefaultSignAlgorithm  = envelopepkg.DefaultAlgorithm
)
