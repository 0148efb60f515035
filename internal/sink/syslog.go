package sink

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// DefaultSyslogPort is used when Params.Port is zero for the syslog kind.
const DefaultSyslogPort = 514

var facilityNames = []string{
	"kern", "user", "mail", "daemon", "auth", "syslog", "lpr", "news",
	"uucp", "cron", "authpriv", "ftp", "ntp", "audit", "alert", "clock",
	"local0", "local1", "local2", "local3", "local4", "local5", "local6", "local7",
}

// facilityUser is the facility applied when none or an unknown one is given.
const facilityUser = 1

// ParseFacility returns the numeric code for a facility name such as
// "daemon" or "local3". Unknown names map to "user".
func ParseFacility(name string) int {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range facilityNames {
		if n == name {
			return i
		}
	}
	return facilityUser
}

// syslogSeverity maps a level to an RFC 5424 severity.
func syslogSeverity(level logrus.Level) int {
	switch level {
	case logrus.PanicLevel, logrus.FatalLevel:
		return 2 // crit
	case logrus.ErrorLevel:
		return 3
	case logrus.WarnLevel:
		return 4
	case logrus.InfoLevel:
		return 6
	default:
		return 7
	}
}

// NewSyslogHandler sends records as UDP datagrams prefixed with "<PRI>",
// where PRI is facility*8 + severity.
func NewSyslogHandler(address string, facility int, dial DialFunc) *NetworkHandler {
	if facility < 0 || facility >= len(facilityNames) {
		facility = facilityUser
	}

	return newNetworkHandler(KindSyslog, "udp", address, dial, func(entry *logrus.Entry, line []byte) []byte {
		pri := facility*8 + syslogSeverity(entry.Level)

		var b bytes.Buffer
		b.Grow(len(line) + 5)
		b.WriteByte('<')
		b.WriteString(strconv.Itoa(pri))
		b.WriteByte('>')
		b.Write(bytes.TrimRight(line, "\n"))
		return b.Bytes()
	})
}
