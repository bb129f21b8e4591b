package bot

import (
	"fmt"
	"strings"

	"tmpmurcia-notifier/subscription"
)

// Reply texts, kept as builders so the command handlers stay short.

const (
	usageSubscribe     = "❌ Uso: /suscribir [número de línea]\nEjemplo: `/suscribir 11`"
	usageUnsubscribe   = "❌ Uso: /desuscribir [número de línea]\nEjemplo: `/desuscribir 44`"
	usageGeneralAlerts = "❌ Uso: /alertas_generales [on/off]\nEjemplo: `/alertas_generales off`"
	errorText          = "⚠️ Ha ocurrido un error, inténtalo de nuevo en unos minutos."

	helpText = `📚 *Ayuda - Monitor TMP Murcia*

🔧 *Comandos disponibles:*

• ` + "`/suscribir [línea]`" + ` - Suscribirte a una línea
• ` + "`/desuscribir [línea]`" + ` - Desuscribirte de una línea
• ` + "`/mis_lineas`" + ` - Ver tus suscripciones
• ` + "`/alertas_generales [on/off]`" + ` - Alertas sin línea específica
• ` + "`/ayuda`" + ` - Ver esta ayuda

ℹ️ *Sobre alertas generales:*
Algunas alertas no especifican número de línea (avisos generales, cambios de servicio). Por defecto las recibirás, pero puedes desactivarlas.

🤖 El bot revisa la página de TMP periódicamente y te avisa de novedades en tus líneas suscritas.`
)

func welcomeText(name string) string {
	return fmt.Sprintf(`🚌 *¡Bienvenido al Monitor de Alertas TMP Murcia!*

Hola %s! 👋

Este bot te enviará notificaciones automáticas cuando haya alertas de las líneas de autobús que elijas.

%s

💡 *Nota:* Por defecto recibirás alertas generales (sin línea específica). Puedes desactivarlas con `+"`/alertas_generales off`", name, helpText)
}

func subscribeReply(line string, added bool) string {
	if added {
		return fmt.Sprintf("✅ ¡Suscrito a la línea %s!\n\nAhora recibirás alertas cuando haya novedades en esta línea.", line)
	}
	return fmt.Sprintf("ℹ️ Ya estabas suscrito a la línea %s", line)
}

func unsubscribeReply(line string, removed bool) string {
	if removed {
		return fmt.Sprintf("✅ Desuscrito de la línea %s\n\nYa no recibirás alertas de esta línea.", line)
	}
	return fmt.Sprintf("ℹ️ No estabas suscrito a la línea %s", line)
}

func myLinesReply(lines []string, general bool) string {
	if len(lines) == 0 && !general {
		return "ℹ️ No estás suscrito a ninguna línea y no recibes alertas generales.\n\nUsa `/suscribir [línea]` para empezar a recibir alertas."
	}

	var b strings.Builder
	b.WriteString("📊 *Tus suscripciones actuales:*\n\n")
	if len(lines) > 0 {
		b.WriteString("🚌 *Líneas:*\n")
		for _, line := range lines {
			fmt.Fprintf(&b, "   • Línea %s\n", line)
		}
	} else {
		b.WriteString("🚌 *Líneas:* Ninguna\n")
	}

	state := "❌ Desactivadas"
	if general {
		state = "✅ Activadas"
	}
	fmt.Fprintf(&b, "\n📢 *Alertas generales:* %s\n", state)
	b.WriteString("\n💡 Usa `/suscribir [línea]` para añadir más líneas")
	if general {
		b.WriteString("\n💡 Usa `/alertas_generales off` para desactivar alertas generales")
	}
	return b.String()
}

func generalAlertsReply(on bool) string {
	if on {
		return "✅ Alertas generales activadas\n\nRecibirás notificaciones de alertas que no tengan número de línea específico."
	}
	return "✅ Alertas generales desactivadas\n\nYa no recibirás alertas sin línea específica."
}

func statsReply(st *subscription.Stats) string {
	var b strings.Builder
	b.WriteString("📊 *Estadísticas del Sistema*\n\n")
	fmt.Fprintf(&b, "👥 Total de usuarios: %d\n", st.TotalSubscribers)
	fmt.Fprintf(&b, "🚌 Líneas monitoreadas: %d\n", len(st.MonitoredLines))
	fmt.Fprintf(&b, "📢 Usuarios con alertas generales: %d\n", st.GeneralSubscribers)

	if len(st.MonitoredLines) > 0 {
		b.WriteString("\n*Suscripciones por línea:*\n")
		for _, line := range st.MonitoredLines {
			count := st.PerLine[line]
			plural := "s"
			if count == 1 {
				plural = ""
			}
			fmt.Fprintf(&b, "   • Línea %s: %d usuario%s\n", line, count, plural)
		}
	}
	return b.String()
}

func unknownCommandReply(command string) string {
	return fmt.Sprintf("❓ Comando no reconocido: %s\n\nUsa /ayuda para ver los comandos disponibles.", command)
}
