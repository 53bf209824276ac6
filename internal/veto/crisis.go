package veto

// DefaultCrisisText is prepended verbatim to any response produced under a
// control decision. Deployments override it through crisis_text.
const DefaultCrisisText = `If you are in immediate danger or thinking about harming yourself, please reach out now:
- Emergency services: call your local emergency number
- Suicide & Crisis Lifeline (US): call or text 988
- Samaritans (UK & ROI): call 116 123
- International Association for Suicide Prevention: https://www.iasp.info/resources/Crisis_Centres/
You do not have to go through this alone.`
