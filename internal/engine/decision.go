package engine

import (
	"sort"
	"time"

	"github.com/FelixMarschall/SmartHomeBioSignal/internal/models"
)

const (
	actionHeat     = "heat"
	actionCool     = "cool"
	actionHumidify = "humidify"
	actionDry      = "dry"
)

// highLevelDecision 高层阈值判定：仅检查各特征是否越界
//
// The temperature axis combines the room and skin checks: an action fires
// only when one signal proposes it and the other does not oppose it. The
// humidity axis is independent and copies its own check directly.
func (e *Engine) highLevelDecision(latest *models.FusedRecord) models.ActionIntent {
	var actions models.ActionIntent

	roomAction := checkRoomTemperature(latest)
	skinAction := checkSkinTemperature(latest)
	humidityAction := checkRoomHumidity(latest)

	if (roomAction == actionCool && skinAction != actionHeat) ||
		(roomAction != actionHeat && skinAction == actionCool) {
		actions.Cool = 1
	} else if (roomAction == actionHeat && skinAction != actionCool) ||
		(roomAction != actionCool && skinAction == actionHeat) {
		actions.Heat = 1
	}

	switch humidityAction {
	case actionHumidify:
		actions.Humidify = 1
	case actionDry:
		actions.Dry = 1
	}

	return actions
}

func checkRoomTemperature(rec *models.FusedRecord) string {
	if rec.RoomTempC < MinRoomTempC {
		return actionHeat
	}
	if rec.RoomTempC > MaxRoomTempC {
		return actionCool
	}
	return ""
}

func checkSkinTemperature(rec *models.FusedRecord) string {
	if rec.WristTempC < MinSkinTempC {
		return actionHeat
	}
	if rec.WristTempC > MaxSkinTempC {
		return actionCool
	}
	return ""
}

func checkRoomHumidity(rec *models.FusedRecord) string {
	if rec.RoomHumidityPct < MinHumidityPct {
		return actionHumidify
	}
	if rec.RoomHumidityPct > MaxHumidityPct {
		return actionDry
	}
	return ""
}

// lowLevelDecision 低层判定：基于分类器众数与用户反馈
//
// Runs only when the threshold pass was inconclusive on the temperature
// axis. Uses the most frequent classifier label over the trailing lag
// window, refined by the latest record's user feedback when present.
// last_feedback is updated unconditionally at the end of every pass, even
// when no branch fired and even when the feedback itself is absent.
func (e *Engine) lowLevelDecision(latest *models.FusedRecord) models.ActionIntent {
	var actions models.ActionIntent

	mode := e.modeClassifierPrediction()
	feedback := latest.UserFeedback

	switch {
	case feedback == nil:
		// Classifier only. Recalibration runs for every label including
		// neutral, which re-centers the target on its own comfort zone.
		e.shiftOptimalRoomTemperature(mode)

		if mode == models.LabelTooWarm {
			actions.Cool = 1
		} else if mode == models.LabelTooCold {
			actions.Heat = 1
		}

	case *feedback == models.FeedbackHot ||
		(*feedback == models.FeedbackSlightlyWarm && mode == models.LabelTooWarm) ||
		(*feedback == models.FeedbackSlightlyWarm && feedbackAllows(e.userConfig.lastFeedback, 1)):
		e.shiftOptimalRoomTemperature(*feedback)
		actions.Cool = 1

	case *feedback == models.FeedbackCold ||
		(*feedback == models.FeedbackSlightlyCool && mode == models.LabelTooCold) ||
		(*feedback == models.FeedbackSlightlyCool && feedbackAllows(e.userConfig.lastFeedback, -1)):
		e.shiftOptimalRoomTemperature(*feedback)
		actions.Heat = 1
	}

	e.userConfig.lastFeedback = feedback

	return actions
}

// modeClassifierPrediction returns the most frequent non-null classifier
// label over the last classifierLag records. Ties break deterministically
// toward the smallest label. An all-null window yields the neutral label.
func (e *Engine) modeClassifierPrediction() int {
	start := len(e.window) - e.classifierLag
	if start < 0 {
		start = 0
	}

	counts := make(map[int]int)
	for _, rec := range e.window[start:] {
		if rec.ClassifierPrediction != nil {
			counts[*rec.ClassifierPrediction]++
		}
	}
	if len(counts) == 0 {
		return models.LabelNeutral
	}

	labels := make([]int, 0, len(counts))
	for label := range counts {
		labels = append(labels, label)
	}
	sort.Ints(labels)

	mode := labels[0]
	for _, label := range labels[1:] {
		if counts[label] > counts[mode] {
			mode = label
		}
	}
	return mode
}

// feedbackAllows reports whether a mild feedback in direction dir
// (+1 warm, -1 cool) does not contradict the previous feedback. Neutral
// and absent previous feedback never contradict.
func feedbackAllows(last *int, dir int) bool {
	if last == nil {
		return true
	}
	return *last == 0 || *last == dir
}

// overwriteContradictingActions zeroes any proposed action that reverses
// the prior decision when that decision is younger than the block window.
// The heat/cool and humidify/dry axes are suppressed independently.
func (e *Engine) overwriteContradictingActions(actions models.ActionIntent, prior *models.FusedRecord) models.ActionIntent {
	earliestForChange := time.Now().Add(-e.contradictionBlock)
	if !prior.Timestamp.After(earliestForChange) {
		return actions
	}

	priorIntent, ok := prior.Intent()
	if !ok {
		return actions
	}

	if priorIntent.Heat == 1 && actions.Cool == 1 {
		actions.Cool = 0
	} else if priorIntent.Cool == 1 && actions.Heat == 1 {
		actions.Heat = 0
	}

	if priorIntent.Humidify == 1 && actions.Dry == 1 {
		actions.Dry = 0
	} else if priorIntent.Dry == 1 && actions.Humidify == 1 {
		actions.Humidify = 0
	}

	return actions
}
