// Package locale holds the user-facing message catalog (English and Turkish).
//
// Callers pass PIDs and ports pre-rendered as strings; the printer would
// otherwise group their digits ("8,000").
package locale

import (
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

type Key string

const (
	Booting          Key = "booting"
	Halting          Key = "halting"
	SuccessStart     Key = "success_start"
	SuccessStop      Key = "success_stop"
	StopWarning      Key = "stop_warning"
	NotRunning       Key = "not_running"
	AlreadyRunning   Key = "already_running"
	ImmediateCrash   Key = "immediate_crash"
	StartFailed      Key = "start_failed"
	SpecifyPackage   Key = "specify_package"
	StatusFetching   Key = "status_fetching"
	Active           Key = "active"
	Crashed          Key = "crashed"
	Stopped          Key = "stopped"
	Service          Key = "service"
	Status           Key = "status"
	PortInfo         Key = "port_info"
	TipMonitor       Key = "tip_monitor"
	TipBoot          Key = "tip_boot"
	NoActiveServices Key = "no_active_services"
	LogNotFound      Key = "log_not_found"
	LogStartHint     Key = "log_start_hint"
	LogLiveStream    Key = "log_live_stream"
	LogExitTip       Key = "log_exit_tip"
	InstallFetching  Key = "install_fetching"
	InstallDone      Key = "install_done"
	InstallFailed    Key = "install_failed"
	Unsupported      Key = "unsupported"
	NotInstalled     Key = "not_installed"
	MySQLInit        Key = "mysql_init"
	MySQLInitDone    Key = "mysql_init_done"
	ConnURL          Key = "conn_url"
	ConnHost         Key = "conn_host"
	ConnUser         Key = "conn_user"
	ConnPass         Key = "conn_pass"
	None             Key = "none"
)

var english = map[Key]string{
	Booting:          "Booting %s engine...",
	Halting:          "Halting %s engine...",
	SuccessStart:     "%s is running in the background (PID: %s)",
	SuccessStop:      "%s terminated cleanly! (No zombies left behind)",
	StopWarning:      "%s was already gone (%s); its record was removed",
	NotRunning:       "%s is not running",
	AlreadyRunning:   "%s is already running (PID: %s)",
	ImmediateCrash:   "%s exited right after start (exit code %s). Check %s",
	StartFailed:      "Failed to start %s: %s",
	SpecifyPackage:   "Please specify a package name (e.g. 'fampp %s php') or use --all.",
	StatusFetching:   "Fetching FAMPP environment status...",
	Active:           "Active",
	Crashed:          "Crashed",
	Stopped:          "Stopped",
	Service:          "Service",
	Status:           "Status",
	PortInfo:         "Port / Info",
	TipMonitor:       "To monitor a service use:",
	TipBoot:          "To boot up your environment use:",
	NoActiveServices: "No active services",
	LogNotFound:      "Log file not found. The service may not have been started: %s",
	LogStartHint:     "Tip: start the service first, e.g. 'fampp start %s'.",
	LogLiveStream:    "LIVE LOG STREAM: %s",
	LogExitTip:       "Press Ctrl+C to exit and return to the terminal",
	InstallFetching:  "Fetching %s (v%s) from registry...",
	InstallDone:      "%s integrated successfully! (%s)",
	InstallFailed:    "Installing %s failed: %s",
	Unsupported:      "Package '%s' is not supported or not found in registry.",
	NotInstalled:     "'%s' is not installed. Run 'fampp install %s' first.",
	MySQLInit:        "Preparing MySQL for the first run (creating system tables)...",
	MySQLInitDone:    "MySQL data files created successfully.",
	ConnURL:          "Localhost : %s",
	ConnHost:         "Host : %s",
	ConnUser:         "User : %s",
	ConnPass:         "Pass : %s",
	None:             "(None)",
}

var turkish = map[Key]string{
	Booting:          "%s motoru başlatılıyor...",
	Halting:          "%s motoru durduruluyor...",
	SuccessStart:     "%s arka planda başarıyla çalışıyor (PID: %s)",
	SuccessStop:      "%s temiz bir şekilde kapatıldı! (Zombi proses yok)",
	StopWarning:      "%s zaten kapanmıştı (%s); kaydı silindi",
	NotRunning:       "%s çalışmıyor",
	AlreadyRunning:   "%s zaten çalışıyor (PID: %s)",
	ImmediateCrash:   "%s başlatıldıktan hemen sonra kapandı (çıkış kodu %s). Kontrol edin: %s",
	StartFailed:      "%s başlatılamadı: %s",
	SpecifyPackage:   "Lütfen bir paket adı belirtin (Örn: 'fampp %s php') veya --all kullanın.",
	StatusFetching:   "FAMPP ortam durumu getiriliyor...",
	Active:           "Aktif",
	Crashed:          "Çöktü",
	Stopped:          "Durdu",
	Service:          "Servis",
	Status:           "Durum",
	PortInfo:         "Port / Bilgi",
	TipMonitor:       "Bir servisi izlemek için şunu kullanın:",
	TipBoot:          "Ortamınızı başlatmak için şunu kullanın:",
	NoActiveServices: "Aktif bir servis yok",
	LogNotFound:      "Log dosyası bulunamadı. Servis başlatılmamış olabilir: %s",
	LogStartHint:     "İpucu: Önce servisi başlatın, örn. 'fampp start %s'.",
	LogLiveStream:    "CANLI KAYIT AKIŞI: %s",
	LogExitTip:       "Çıkış yapmak ve terminale dönmek için Ctrl+C tuşlarına basın",
	InstallFetching:  "%s (v%s) kayıt defterinden alınıyor...",
	InstallDone:      "%s başarıyla kuruldu! (%s)",
	InstallFailed:    "%s kurulamadı: %s",
	Unsupported:      "'%s' paketi desteklenmiyor veya kayıt defterinde yok.",
	NotInstalled:     "'%s' kurulu değil. Önce 'fampp install %s' çalıştırın.",
	MySQLInit:        "MySQL ilk kez hazırlanıyor (Sistem tabloları oluşturuluyor)...",
	MySQLInitDone:    "MySQL veritabanı dosyaları başarıyla oluşturuldu.",
	ConnURL:          "Yerel adres : %s",
	ConnHost:         "Sunucu : %s",
	ConnUser:         "Kullanıcı : %s",
	ConnPass:         "Parola : %s",
	None:             "(Yok)",
}

var (
	supported = []language.Tag{language.English, language.Turkish}
	matcher   = language.NewMatcher(supported)
	cat       = build()
)

func build() catalog.Catalog {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for tag, msgs := range map[language.Tag]map[Key]string{language.English: english, language.Turkish: turkish} {
		for k, m := range msgs {
			if err := b.SetString(tag, string(k), m); err != nil {
				panic(err)
			}
		}
	}
	return b
}

// Printer renders catalog messages in one language.
type Printer struct {
	tag language.Tag
	p   *message.Printer
}

// New picks the best supported language for lang ("tr", "tr-TR", "EN");
// anything unrecognised falls back to English.
func New(lang string) *Printer {
	tag := language.English
	if t, err := language.Parse(strings.TrimSpace(lang)); err == nil {
		_, idx, conf := matcher.Match(t)
		if conf != language.No {
			tag = supported[idx]
		}
	}
	return &Printer{tag: tag, p: message.NewPrinter(tag, message.Catalog(cat))}
}

// T formats the message for key. Unknown keys are rendered as-is.
func (p *Printer) T(key Key, args ...any) string {
	return p.p.Sprintf(string(key), args...)
}

// Language returns the selected base language, e.g. "tr".
func (p *Printer) Language() string {
	base, _ := p.tag.Base()
	return base.String()
}

// Languages lists the supported language codes.
func Languages() []string {
	out := make([]string, 0, len(supported))
	for _, t := range supported {
		b, _ := t.Base()
		out = append(out, b.String())
	}
	sort.Strings(out)
	return out
}
