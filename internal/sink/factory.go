package sink

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/GabrielNunesIT/go-libs/logger"
	"github.com/GabrielNunesIT/heartlog/internal/config"
	"github.com/coreos/go-systemd/v22/journal"
	"github.com/sirupsen/logrus"
)

// Handler kinds accepted by Configure. Matching ignores case, '-' and '_'.
const (
	KindRotatingFile      = "rotating-file"
	KindTimedRotatingFile = "timed-rotating-file"
	KindWatchedFile       = "watched-file"
	KindSocket            = "socket"
	KindDatagram          = "datagram"
	KindSyslog            = "syslog"
	KindJournal           = "journal"
	KindSMTP              = "smtp"
	KindHTTP              = "http"
	KindElasticsearch     = "elasticsearch"
	KindLoki              = "loki"
	KindNATS              = "nats"
	KindBuffering         = "buffering"
	KindMemory            = "memory"
	KindQueue             = "queue"
	KindStream            = "stream"
)

// DefaultSocketPort is used by socket and datagram kinds when Params.Port is zero.
const DefaultSocketPort = 51000

// ErrConfiguration is returned when the parameters cannot describe a usable sink.
var ErrConfiguration = errors.New("invalid sink configuration")

// errMissingParams makes Configure install the stream handler instead.
var errMissingParams = errors.New("required parameters missing")

// Params describes one sink. Fields irrelevant to Kind are ignored.
type Params struct {
	Kind        string
	Destination string
	Level       string

	MaxSizeMB   int
	Backups     int
	RotateEvery time.Duration

	Host     string
	Port     int
	Facility string

	MailHost     string
	FromAddr     string
	ToAddrs      []string
	Subject      string
	MailUser     string
	MailPassword string

	URL    string
	Method string

	Capacity   int
	FlushLevel string
	Target     Handler

	Queue chan<- *Record

	StreamTarget string

	Elasticsearch ElasticsearchParams
	Loki          LokiParams
	NATS          NATSParams
}

// DefaultParams returns the parameters used when nothing else is given.
func DefaultParams() Params {
	return Params{
		Kind:         KindRotatingFile,
		Level:        "info",
		MaxSizeMB:    50,
		Backups:      1,
		RotateEvery:  time.Hour,
		Host:         "localhost",
		Method:       "GET",
		Capacity:     DefaultCapacity,
		FlushLevel:   "error",
		StreamTarget: StreamStderr,
	}
}

// ParamsFromConfig maps the sink section of the configuration file.
func ParamsFromConfig(c config.SinkConfig) Params {
	return Params{
		Kind:         c.Kind,
		Destination:  c.Destination,
		Level:        c.Level,
		MaxSizeMB:    c.MaxSizeMB,
		Backups:      c.Backups,
		RotateEvery:  c.RotateEvery,
		Host:         c.Host,
		Port:         c.Port,
		Facility:     c.Facility,
		MailHost:     c.Mail.Host,
		FromAddr:     c.Mail.From,
		ToAddrs:      c.Mail.To,
		Subject:      c.Mail.Subject,
		MailUser:     c.Mail.User,
		MailPassword: c.Mail.Password,
		URL:          c.HTTP.URL,
		Method:       c.HTTP.Method,
		Capacity:     c.Capacity,
		FlushLevel:   c.FlushLevel,
		StreamTarget: c.Stream,
		Elasticsearch: ElasticsearchParams{
			Addresses:     c.Elasticsearch.Addresses,
			Index:         c.Elasticsearch.Index,
			Username:      c.Elasticsearch.Username,
			Password:      c.Elasticsearch.Password,
			FlushInterval: c.Elasticsearch.FlushInterval,
		},
		Loki: LokiParams{
			URL:           c.Loki.URL,
			TenantID:      c.Loki.TenantID,
			Labels:        c.Loki.Labels,
			BatchSize:     c.Loki.BatchSize,
			FlushInterval: c.Loki.FlushInterval,
		},
		NATS: NATSParams{
			URL:     c.NATS.URL,
			Subject: c.NATS.Subject,
		},
	}
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithHTTPClient sets the client used by the http and loki kinds.
func WithHTTPClient(client HTTPDoer) FactoryOption {
	return func(f *Factory) { f.httpClient = client }
}

// WithDialer sets the dialer used by the socket, datagram and syslog kinds.
func WithDialer(dial DialFunc) FactoryOption {
	return func(f *Factory) { f.dial = dial }
}

// WithMailSender sets the function delivering smtp records.
func WithMailSender(send MailSender) FactoryOption {
	return func(f *Factory) { f.mailSender = send }
}

// WithWriterFactory sets a custom factory for the rotating-file writer.
func WithWriterFactory(wf WriterFactory) FactoryOption {
	return func(f *Factory) { f.writerFactory = wf }
}

// WithIndexerFactory sets a custom factory for the elasticsearch bulk indexer.
func WithIndexerFactory(inf IndexerFactory) FactoryOption {
	return func(f *Factory) { f.indexerFactory = inf }
}

// WithPublisherFactory sets a custom factory for the nats connection.
func WithPublisherFactory(pf PublisherFactory) FactoryOption {
	return func(f *Factory) { f.publisherFactory = pf }
}

// WithJournalSender sets the journal writer and reports the journal as available.
func WithJournalSender(send JournalSender) FactoryOption {
	return func(f *Factory) {
		f.journalSender = send
		f.journalEnabled = func() bool { return true }
	}
}

// WithJournalEnabled overrides journal availability detection.
func WithJournalEnabled(enabled func() bool) FactoryOption {
	return func(f *Factory) { f.journalEnabled = enabled }
}

// WithStreams sets the writers behind the stderr and stdout stream targets.
func WithStreams(stderr, stdout io.Writer) FactoryOption {
	return func(f *Factory) {
		f.stderr = stderr
		f.stdout = stdout
	}
}

// Factory builds handlers from Params and installs them on a Context.
type Factory struct {
	logger logger.ILogger

	httpClient       HTTPDoer
	dial             DialFunc
	mailSender       MailSender
	writerFactory    WriterFactory
	indexerFactory   IndexerFactory
	publisherFactory PublisherFactory
	journalSender    JournalSender
	journalEnabled   func() bool
	stderr           io.Writer
	stdout           io.Writer

	kinds map[string]kindSpec
}

// kindSpec describes one handler kind. check reports parameters the kind
// cannot work without, wrapping errMissingParams; a nil check accepts
// anything.
type kindSpec struct {
	name  string
	check func(p Params) error
	build func(p Params) (Handler, error)
}

// NewFactory creates a factory. log receives diagnostics such as fallbacks.
func NewFactory(log logger.ILogger, opts ...FactoryOption) *Factory {
	f := &Factory{
		logger:           log.SubLogger("SinkFactory"),
		dial:             defaultDial,
		writerFactory:    defaultWriterFactory,
		indexerFactory:   defaultIndexerFactory,
		publisherFactory: defaultPublisherFactory,
		journalEnabled:   journal.Enabled,
		stderr:           os.Stderr,
		stdout:           os.Stdout,
	}
	for _, opt := range opts {
		opt(f)
	}

	specs := []kindSpec{
		{name: KindRotatingFile, build: f.rotatingFile},
		{name: KindTimedRotatingFile, build: f.timedRotatingFile},
		{name: KindWatchedFile, build: f.watchedFile},
		{name: KindSocket, build: f.socket},
		{name: KindDatagram, build: f.datagram},
		{name: KindSyslog, build: f.syslog},
		{name: KindJournal, check: f.checkJournal, build: f.journal},
		{name: KindSMTP, check: checkSMTP, build: f.smtp},
		{name: KindHTTP, check: checkHTTP, build: f.http},
		{name: KindElasticsearch, check: checkElasticsearch, build: f.elasticsearch},
		{name: KindLoki, check: checkLoki, build: f.loki},
		{name: KindNATS, check: checkNATS, build: f.nats},
		{name: KindBuffering, build: f.buffering},
		{name: KindMemory, build: f.memory},
		{name: KindQueue, check: checkQueue, build: f.queue},
		{name: KindStream, build: f.stream},
	}

	f.kinds = make(map[string]kindSpec, len(specs))
	for _, spec := range specs {
		f.kinds[normalizeKind(spec.name)] = spec
	}
	return f
}

// normalizeKind lowercases kind and strips '-' and '_'.
func normalizeKind(kind string) string {
	kind = strings.ToLower(strings.TrimSpace(kind))
	return strings.NewReplacer("-", "", "_", "").Replace(kind)
}

func isFileKind(kind string) bool {
	switch kind {
	case normalizeKind(KindRotatingFile), normalizeKind(KindTimedRotatingFile), normalizeKind(KindWatchedFile):
		return true
	}
	return false
}

// Resolve reports which handler kind Configure would install for p without
// building anything. It fails only where Configure would.
func (f *Factory) Resolve(p Params) (string, error) {
	spec, _, err := f.resolve(p)
	if err != nil {
		return "", err
	}
	return spec.name, nil
}

func (f *Factory) resolve(p Params) (kindSpec, string, error) {
	kind := normalizeKind(p.Kind)
	if kind == "" {
		kind = normalizeKind(KindRotatingFile)
	}

	if isFileKind(kind) && p.Destination == "" {
		return kindSpec{}, "", fmt.Errorf("%w: %s requires a destination", ErrConfiguration, f.kinds[kind].name)
	}

	spec, ok := f.kinds[kind]
	if !ok {
		return f.kinds[KindStream], fmt.Sprintf("unknown sink kind %q", p.Kind), nil
	}
	if spec.check != nil {
		if err := spec.check(p); err != nil {
			return f.kinds[KindStream], err.Error(), nil
		}
	}
	return spec, "", nil
}

// Configure builds one handler from p, sets the context's level and appends
// the handler to lc. Handlers installed earlier are kept. Missing
// parameters for network kinds and unknown kinds install a stream handler
// instead; only file kinds without a destination are an error.
func (f *Factory) Configure(lc *Context, p Params) (Handler, error) {
	spec, fallback, err := f.resolve(p)
	if err != nil {
		return nil, err
	}
	if fallback != "" {
		f.logger.Debugf("sink falls back to stream: %s", fallback)
	}

	if isFileKind(normalizeKind(spec.name)) {
		if err := os.MkdirAll(filepath.Dir(p.Destination), 0o755); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}
	}

	lc.SetLevel(ParseLevel(p.Level))

	h, err := spec.build(p)
	if err != nil {
		return nil, fmt.Errorf("creating %s handler: %w", spec.name, err)
	}

	h.SetFormatter(NewTemplateFormatter(""))
	lc.AddHandler(h)

	f.logger.Debugf("sink handler installed: kind=%s level=%s", h.Name(), levelName(lc.Level()))
	return h, nil
}

func (f *Factory) stream(p Params) (Handler, error) {
	if strings.EqualFold(p.StreamTarget, StreamStdout) {
		return NewStreamHandler(f.stdout), nil
	}
	return NewStreamHandler(f.stderr), nil
}

func (f *Factory) rotatingFile(p Params) (Handler, error) {
	if p.MaxSizeMB <= 0 {
		p.MaxSizeMB = 50
	}
	if p.Backups < 0 {
		p.Backups = 1
	}
	w, err := f.writerFactory(p)
	if err != nil {
		return nil, err
	}
	return NewRotatingFileHandler(w), nil
}

func (f *Factory) timedRotatingFile(p Params) (Handler, error) {
	if p.Backups < 0 {
		p.Backups = 1
	}
	return NewTimedRotatingFileHandler(p.Destination, p.RotateEvery, p.Backups), nil
}

func (f *Factory) watchedFile(p Params) (Handler, error) {
	return NewWatchedFileHandler(p.Destination)
}

// address joins host and port, applying defaults for missing parts.
func address(p Params, defaultPort int) string {
	host := p.Host
	if host == "" {
		host = "localhost"
	}
	port := p.Port
	if port <= 0 {
		port = defaultPort
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

func (f *Factory) socket(p Params) (Handler, error) {
	return NewSocketHandler(address(p, DefaultSocketPort), f.dial), nil
}

func (f *Factory) datagram(p Params) (Handler, error) {
	return NewDatagramHandler(address(p, DefaultSocketPort), f.dial), nil
}

func (f *Factory) syslog(p Params) (Handler, error) {
	return NewSyslogHandler(address(p, DefaultSyslogPort), ParseFacility(p.Facility), f.dial), nil
}

func (f *Factory) checkJournal(Params) error {
	if f.journalEnabled == nil || !f.journalEnabled() {
		return fmt.Errorf("%w: systemd journal not available", errMissingParams)
	}
	return nil
}

func (f *Factory) journal(Params) (Handler, error) {
	return NewJournalHandler(f.journalSender), nil
}

func checkSMTP(p Params) error {
	if p.MailHost == "" || p.FromAddr == "" || len(p.ToAddrs) == 0 || p.Subject == "" {
		return fmt.Errorf("%w: smtp needs mail host, from, to and subject", errMissingParams)
	}
	return nil
}

func (f *Factory) smtp(p Params) (Handler, error) {
	return NewSMTPHandler(p.MailHost, p.FromAddr, p.ToAddrs, p.Subject, p.MailUser, p.MailPassword, f.mailSender), nil
}

func checkHTTP(p Params) error {
	if p.URL == "" {
		return fmt.Errorf("%w: http needs a url", errMissingParams)
	}
	return nil
}

func (f *Factory) http(p Params) (Handler, error) {
	return NewHTTPHandler(p.Host, p.URL, p.Method, f.httpClient), nil
}

func checkElasticsearch(p Params) error {
	if len(p.Elasticsearch.Addresses) == 0 || p.Elasticsearch.Index == "" {
		return fmt.Errorf("%w: elasticsearch needs addresses and an index", errMissingParams)
	}
	return nil
}

func (f *Factory) elasticsearch(p Params) (Handler, error) {
	indexer, err := f.indexerFactory(p.Elasticsearch)
	if err != nil {
		return nil, err
	}
	log := f.logger
	return NewElasticsearchHandler(indexer, func(err error) {
		log.Warningf("elasticsearch document rejected: %v", err)
	}), nil
}

func checkLoki(p Params) error {
	if p.Loki.URL == "" {
		return fmt.Errorf("%w: loki needs a url", errMissingParams)
	}
	return nil
}

func (f *Factory) loki(p Params) (Handler, error) {
	return NewLokiHandler(p.Loki, f.httpClient), nil
}

func checkNATS(p Params) error {
	if p.NATS.Subject == "" {
		return fmt.Errorf("%w: nats needs a subject", errMissingParams)
	}
	return nil
}

func (f *Factory) nats(p Params) (Handler, error) {
	pub, err := f.publisherFactory(p.NATS)
	if err != nil {
		return nil, err
	}
	return NewNATSHandler(pub, p.NATS.Subject), nil
}

func (f *Factory) buffering(p Params) (Handler, error) {
	return NewBufferingHandler(p.Capacity), nil
}

func (f *Factory) memory(p Params) (Handler, error) {
	flushLevel := logrus.ErrorLevel
	if p.FlushLevel != "" {
		flushLevel = ParseLevel(p.FlushLevel)
	}
	return NewMemoryHandler(p.Capacity, flushLevel, p.Target), nil
}

func checkQueue(p Params) error {
	if p.Queue == nil {
		return fmt.Errorf("%w: queue needs a channel", errMissingParams)
	}
	return nil
}

func (f *Factory) queue(p Params) (Handler, error) {
	return NewQueueHandler(p.Queue), nil
}
