package utils

import (
	"fmt"
	"math/rand"
	"slices"

	"github.com/escribia-dev/post-scheduler/backend/internal/domain"
	"github.com/google/uuid"
	"github.com/mozillazg/go-pinyin"
	"golang.org/x/crypto/bcrypt"
)

var commonSurnames = []string{
	"王", "李", "张", "刘", "陈", "杨", "赵", "黄", "周", "吴",
	"徐", "孙", "胡", "朱", "高", "林", "何", "郭", "马", "罗",
}
var commonNameCharacters = []string{
	"伟", "强", "芳", "敏", "静", "丽", "刚", "杰", "娟", "勇",
	"艳", "涛", "明", "军", "磊", "洋", "勇", "霞", "飞", "玲",
	"超", "华", "平", "辉", "梅", "鑫", "龙", "鹏", "玉", "斌",
}

func GenerateRandomChineseName() string {
	surname := commonSurnames[rand.Intn(len(commonSurnames))]
	nameLength := rand.Intn(2) + 1
	name := ""

	for i := 0; i < nameLength; i++ {
		name += commonNameCharacters[rand.Intn(len(commonNameCharacters))]
	}
	return surname + name
}

var digits = "0123456789"

// GenerateHandleFromChineseName 用拼音生成用户名或 profile 标识，末尾附加 1~3 位随机数字
func GenerateHandleFromChineseName(chineseName string) string {
	pinyinArray := pinyin.LazyConvert(chineseName, nil)
	handle := ""

	for _, py := range pinyinArray {
		handle += py
	}

	digitsLength := rand.Intn(3) + 1
	for i := 0; i < digitsLength; i++ {
		handle += string(digits[rand.Intn(len(digits))])
	}

	return handle
}

func GenerateRandomUser(password string, emailDomainName string, agencyID int64) (*domain.User, error) {
	fullName := GenerateRandomChineseName()
	username := GenerateHandleFromChineseName(fullName)
	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	return &domain.User{
		Username:     username,
		PasswordHash: string(passwordHash),
		FullName:     fullName,
		Email:        username + "@" + emailDomainName,
		Role:         domain.RoleEditor,
		AgencyID:     agencyID,
	}, nil
}

func GenerateRandomProfile() domain.ProfileRef {
	name := GenerateRandomChineseName()
	return domain.ProfileRef{
		ProfileID:   GenerateHandleFromChineseName(name),
		ProfileName: name,
	}
}

var weekdays = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// 用 Fisher-Yates 洗牌算法选出一个随机的非空子集
func GenerateRandomSubset[T any](arr []T) []T {
	arrCopy := append([]T{}, arr...)

	for i := len(arrCopy) - 1; i > 0; i-- {
		j := rand.Intn(i + 1)
		arrCopy[i], arrCopy[j] = arrCopy[j], arrCopy[i]
	}

	n := rand.Intn(len(arrCopy)) + 1
	return arrCopy[:n]
}

func GenerateRandomTimeSlots() []string {
	slotsNum := rand.Intn(4) + 2
	slots := make([]string, 0, slotsNum)

	for len(slots) < slotsNum {
		slot := fmt.Sprintf("%02d:%02d", rand.Intn(14)+7, rand.Intn(2)*30)
		if !slices.Contains(slots, slot) {
			slots = append(slots, slot)
		}
	}
	slices.Sort(slots)

	return slots
}

func GenerateRandomLegacyConfig() *domain.LegacyScheduleConfig {
	return &domain.LegacyScheduleConfig{
		ActiveDays:          GenerateRandomSubset(weekdays),
		PredefinedTimeSlots: GenerateRandomTimeSlots(),
	}
}

// GenerateRandomCurrentConfig 随机生成新版配置，大约一半的时段是通用时段
func GenerateRandomCurrentConfig(profiles []domain.ProfileRef) *domain.CurrentScheduleConfig {
	cfg := &domain.CurrentScheduleConfig{
		TimeslotsData: make(map[string]map[string][]domain.ProfileRef),
	}

	for _, day := range GenerateRandomSubset(weekdays) {
		cfg.TimeslotsData[day] = make(map[string][]domain.ProfileRef)
		for _, slot := range GenerateRandomTimeSlots() {
			allowed := []domain.ProfileRef{}
			if len(profiles) > 0 && rand.Intn(2) == 0 {
				allowed = GenerateRandomSubset(profiles)
			}
			cfg.TimeslotsData[day][slot] = allowed
		}
	}

	return cfg
}

var postTitlePrefixes = []string{"行业观察", "产品更新", "客户故事", "幕后花絮", "招聘启事", "活动回顾"}

func GenerateRandomPost(clientID string, profiles []domain.ProfileRef) *domain.Post {
	profile := profiles[rand.Intn(len(profiles))]
	statuses := []domain.PostStatus{
		domain.PostStatusDrafted,
		domain.PostStatusNeedsVisual,
		domain.PostStatusWaitingForApproval,
		domain.PostStatusApproved,
	}

	return &domain.Post{
		ClientID:    clientID,
		ID:          uuid.NewString(),
		Title:       postTitlePrefixes[rand.Intn(len(postTitlePrefixes))] + " #" + fmt.Sprint(rand.Intn(1000)),
		ProfileID:   profile.ProfileID,
		ProfileName: profile.ProfileName,
		Status:      statuses[rand.Intn(len(statuses))],
	}
}
