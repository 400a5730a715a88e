// Modvote - Viewer-Driven Stream Modifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/modvote

package protocol

// InterfaceSettings are the texts shown by the extension and the overlay.
// %placeholders% are substituted by the front-ends.
type InterfaceSettings struct {
	DurationTooltip          string `json:"durationTooltip"`
	ModificationsHeader      string `json:"modificationsHeader"`
	NextPollText             string `json:"nextPollText"`
	NoModificationName       string `json:"noModificationName"`
	NoModificationTooltip    string `json:"noModificationTooltip"`
	NotRegisteredHeader      string `json:"notRegisteredHeader"`
	NotRegisteredText        string `json:"notRegisteredText"`
	PluralityName            string `json:"pluralityName"`
	PluralityTooltip         string `json:"pluralityTooltip"`
	PollEndedText            string `json:"pollEndedText"`
	SecondsLeftText          string `json:"secondsLeftText"`
	SubscribersOnlyHeader    string `json:"subscribersOnlyHeader"`
	SubscribersOnlyText      string `json:"subscribersOnlyText"`
	VotingModeHeader         string `json:"votingModeHeader"`
	WeightedRandomName       string `json:"weightedRandomName"`
	WeightedRandomTooltip    string `json:"weightedRandomTooltip"`
	WinnerName               string `json:"winnerName"`
	WinnerText               string `json:"winnerText"`
	WinnerTextNoModification string `json:"winnerTextNoModification"`
}

// DefaultInterfaceSettings returns the stock English texts.
func DefaultInterfaceSettings() InterfaceSettings {
	return InterfaceSettings{
		DurationTooltip:          "Choose how long you want this modification to run",
		ModificationsHeader:      "Modifications",
		NextPollText:             "Next poll in %duration% seconds",
		NoModificationName:       "No Modification",
		NoModificationTooltip:    "Choose this if you want to express that no modification at all should be activated",
		NotRegisteredHeader:      "Please log in",
		NotRegisteredText:        "Only registered users may participate",
		PluralityName:            "Plurality",
		PluralityTooltip:         "Chooses most popular modification",
		PollEndedText:            "Poll ended",
		SecondsLeftText:          "%duration% seconds left to vote",
		SubscribersOnlyHeader:    "Subscribers only",
		SubscribersOnlyText:      "Only subscribers of this channel may use this extension",
		VotingModeHeader:         "Voting Mode",
		WeightedRandomName:       "Weighted Random",
		WeightedRandomTooltip:    "Lucky Draw: number of votes determine chance of being chosen",
		WinnerName:               "Winner",
		WinnerText:               "%icon% %mod%\n%votes% of %totalVotes% votes (%percentage%)\nWill run for %duration% seconds",
		WinnerTextNoModification: "%icon% %mod%\nReceived %votes% of %totalVotes% votes (%percentage%)",
	}
}

// PollSettings control poll scheduling and evaluation. Durations and the
// frequency are in seconds; a frequency of 0 disables automatic polls.
type PollSettings struct {
	AllowNoModification bool         `json:"allowNoModification"`
	Duration            int          `json:"duration" validate:"min=0"`
	EbsURL              string       `json:"ebsUrl" validate:"omitempty,wsurl"`
	Frequency           int          `json:"frequency" validate:"min=0"`
	MaxModifications    int          `json:"maxModifications"`
	Mode                VotingMode   `json:"mode" validate:"oneof=plurality weighted_random viewers"`
	Participants        Participants `json:"participants" validate:"oneof=all logged_in subscribers"`
}

// DefaultPollSettings returns the settings of a fresh installation:
// automatic polls disabled, every viewer may vote, plurality wins.
func DefaultPollSettings(ebsURL string) PollSettings {
	return PollSettings{
		Duration:     MinPollDuration,
		EbsURL:       ebsURL,
		Mode:         ModePlurality,
		Participants: ParticipantsAll,
	}
}

// Normalize applies the lower bounds enforced whenever settings are loaded.
func (p *PollSettings) Normalize() {
	if p.Duration < MinPollDuration {
		p.Duration = MinPollDuration
	}
	if p.MaxModifications < 0 {
		p.MaxModifications = 0
	}
	if p.Frequency < 0 {
		p.Frequency = 0
	}
}
